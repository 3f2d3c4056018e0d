// Package narration は質問文の読み上げ音声を生成し、キャッシュする。
package narration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Synthesizer はテキストを音声データに変換する。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CacheRecorder はキャッシュのヒット・ミスを記録する。
type CacheRecorder interface {
	RecordNarrationCache(hit bool)
}

// Config は読み上げキャッシュの設定。
type Config struct {
	Voice           string
	CacheSize       int
	CacheTTL        time.Duration
	PrefetchTimeout time.Duration
	// SynthesizeTimeout は1回の音声合成にかける最大時間。
	SynthesizeTimeout time.Duration
}

// Service は読み上げ音声のキャッシュと先読みを行う。
// 同じテキストへの同時リクエストは1回の合成にまとめられる。
type Service struct {
	synth    Synthesizer
	cfg      Config
	cache    *expirable.LRU[string, []byte]
	group    singleflight.Group
	recorder CacheRecorder
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New はServiceを生成する。recorderはnilでもよい。
func New(synth Synthesizer, cfg Config, recorder CacheRecorder, logger *slog.Logger) *Service {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	if cfg.PrefetchTimeout <= 0 {
		cfg.PrefetchTimeout = 30 * time.Second
	}
	if cfg.SynthesizeTimeout <= 0 {
		cfg.SynthesizeTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		synth:    synth,
		cfg:      cfg,
		cache:    expirable.NewLRU[string, []byte](cfg.CacheSize, nil, cfg.CacheTTL),
		recorder: recorder,
		logger:   logger,
	}
}

func (s *Service) key(text string) string {
	sum := sha256.Sum256([]byte(s.cfg.Voice + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Get は読み上げ音声を返す。キャッシュになければ合成して格納する。
func (s *Service) Get(ctx context.Context, text string) ([]byte, error) {
	key := s.key(text)
	if audio, ok := s.cache.Get(key); ok {
		s.record(true)
		return audio, nil
	}
	s.record(false)
	return s.synthesize(ctx, key, text)
}

// synthesize は合成を1回にまとめて実行する。
// 呼び出し元のキャンセルが他の待機者に波及しないよう、合成は独立したタイムアウトで行う。
func (s *Service) synthesize(ctx context.Context, key, text string) ([]byte, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		if audio, ok := s.cache.Get(key); ok {
			return audio, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SynthesizeTimeout)
		defer cancel()
		audio, err := s.synth.Synthesize(callCtx, text)
		if err != nil {
			return nil, err
		}
		// 後から完了した合成結果で上書きする（last write wins）
		s.cache.Add(key, audio)
		return audio, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prefetch はバックグラウンドで読み上げ音声を合成してキャッシュに入れる。
// 呼び出し元を待たせず、失敗はログに記録するだけ。
func (s *Service) Prefetch(text string) {
	if text == "" {
		return
	}
	key := s.key(text)
	if s.cache.Contains(key) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PrefetchTimeout)
		defer cancel()
		if _, err := s.synthesize(ctx, key, text); err != nil {
			s.logger.Warn("読み上げ音声の先読みに失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Cached はテキストの読み上げ音声がキャッシュ済みかを返す。
func (s *Service) Cached(text string) bool {
	return s.cache.Contains(s.key(text))
}

// Wait は実行中の先読みの完了を待つ。
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) record(hit bool) {
	if s.recorder != nil {
		s.recorder.RecordNarrationCache(hit)
	}
}
