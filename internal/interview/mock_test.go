package interview

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/repository"
)

// cloneSession は保存値と呼び出し側の値が共有されないように複製する。
func cloneSession(s *model.InterviewSession) *model.InterviewSession {
	c := *s
	c.Questions = append([]model.Question(nil), s.Questions...)
	c.Answers = make(map[string]model.Answer, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	return &c
}

// mockInterviewRepo はメモリ上のInterviewRepository。
type mockInterviewRepo struct {
	mu        sync.Mutex
	sessions  map[string]*model.InterviewSession
	histories []*model.SessionHistory
	// conflicts が正の間、Updateは別の書き込みがあったものとして競合を返す。
	conflicts int
	updates   int
}

func newMockInterviewRepo() *mockInterviewRepo {
	return &mockInterviewRepo{sessions: make(map[string]*model.InterviewSession)}
}

func (m *mockInterviewRepo) Create(_ context.Context, s *model.InterviewSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *mockInterviewRepo) FindByID(_ context.Context, id string) (*model.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (m *mockInterviewRepo) ListByUserID(_ context.Context, userID string, status model.SessionStatus) ([]*model.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.InterviewSession
	for _, s := range m.sessions {
		if s.UserID == userID && (status == "" || s.Status == status) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *mockInterviewRepo) checkVersion(s *model.InterviewSession) error {
	stored, ok := m.sessions[s.ID]
	if !ok {
		return repository.ErrVersionConflict
	}
	if m.conflicts > 0 {
		m.conflicts--
		stored.Version++
		return repository.ErrVersionConflict
	}
	if stored.Version != s.Version {
		return repository.ErrVersionConflict
	}
	return nil
}

func (m *mockInterviewRepo) Update(_ context.Context, s *model.InterviewSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkVersion(s); err != nil {
		return err
	}
	m.updates++
	s.Version++
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *mockInterviewRepo) CompleteWithHistory(_ context.Context, s *model.InterviewSession, h *model.SessionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkVersion(s); err != nil {
		return err
	}
	s.Version++
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = cloneSession(s)
	h.Snapshot = *cloneSession(s)
	m.histories = append(m.histories, h)
	return nil
}

func (m *mockInterviewRepo) ListWithFallbackAnswers(_ context.Context, limit int) ([]*model.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.InterviewSession
	for _, s := range m.sessions {
		if s.IsActive() && s.HasFallbackAnswers() && len(out) < limit {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (m *mockInterviewRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockInterviewRepo) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// mockCoach は関数フィールドで振る舞いを差し替えられるAICoach。
type mockCoach struct {
	online       bool
	questionsFn  func(req coach.QuestionRequest) ([]model.Question, coach.FailureClass)
	analyzeFn    func(req coach.AnalysisRequest) *model.Analysis
	transcribeFn func(audio io.Reader, filename string) (string, error)

	mu           sync.Mutex
	questionReqs []coach.QuestionRequest
	analyzeReqs  []coach.AnalysisRequest
}

func newMockCoach() *mockCoach {
	return &mockCoach{
		online: true,
		questionsFn: func(req coach.QuestionRequest) ([]model.Question, coach.FailureClass) {
			qs := make([]model.Question, req.Count)
			for i := range qs {
				qs[i] = model.Question{Text: "質問" + string(rune('A'+i)), Competency: "communication"}
			}
			return qs, ""
		},
		analyzeFn: func(req coach.AnalysisRequest) *model.Analysis {
			return &model.Analysis{Score: 80, Rating: model.RatingGood}
		},
	}
}

func (m *mockCoach) Online() bool { return m.online }

func (m *mockCoach) Questions(_ context.Context, req coach.QuestionRequest) ([]model.Question, coach.FailureClass) {
	m.mu.Lock()
	m.questionReqs = append(m.questionReqs, req)
	m.mu.Unlock()
	return m.questionsFn(req)
}

func (m *mockCoach) Analyze(_ context.Context, req coach.AnalysisRequest) *model.Analysis {
	m.mu.Lock()
	m.analyzeReqs = append(m.analyzeReqs, req)
	m.mu.Unlock()
	return m.analyzeFn(req)
}

func (m *mockCoach) Tips(_ context.Context, req coach.TipsRequest) *model.CoachingTips {
	return &model.CoachingTips{QuestionID: req.Question.ID, Tips: []string{"結論から話す"}}
}

func (m *mockCoach) Transcribe(_ context.Context, audio io.Reader, filename string) (string, error) {
	if m.transcribeFn != nil {
		return m.transcribeFn(audio, filename)
	}
	return "", model.NewAIUnavailableError(coach.OpTranscribe)
}

// mockNarrator は先読みされたテキストを記録する。
type mockNarrator struct {
	mu         sync.Mutex
	prefetched []string
}

func (n *mockNarrator) Get(_ context.Context, text string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

func (n *mockNarrator) Prefetch(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prefetched = append(n.prefetched, text)
}

// mockBlueprints はBlueprintProviderのテスト実装。
type mockBlueprints struct {
	bp  *model.Blueprint
	err error
}

func (b *mockBlueprints) GetOrGenerate(_ context.Context, userID, role, _ string) (*model.Blueprint, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.bp, nil
}

func (b *mockBlueprints) Get(_ context.Context, userID, id string) (*model.Blueprint, error) {
	if b.bp == nil || b.bp.ID != id || b.bp.UserID != userID {
		return nil, model.NewBlueprintNotFoundError(id)
	}
	return b.bp, nil
}

type mockRecorder struct {
	started   int
	completed []int
}

func (r *mockRecorder) RecordSessionStarted() { r.started++ }

func (r *mockRecorder) RecordSessionCompleted(score int) { r.completed = append(r.completed, score) }
