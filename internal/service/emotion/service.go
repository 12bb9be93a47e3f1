// Package emotion 调用外部情绪/反讽评分服务，失败时回退到本地关键词启发式。
package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	analysis "github.com/zhouzirui/enoki/backend/internal/analysis/emotion"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
	"github.com/zhouzirui/enoki/backend/internal/metrics"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

var ErrDisabled = errors.New("emotion service disabled")

const maxResponseBytes = 1 << 20

// Config 控制情绪分析服务的行为。
type Config struct {
	BaseURL   string
	IronyPath string
	Timeout   time.Duration
	Enabled   bool
}

// Result 是一条消息的全部外部信号。
type Result struct {
	Emotions []chat.EmotionScore `json:"emotions"`
	Irony    sarcasm.Irony       `json:"irony"`
	Intent   bool                `json:"intent"`
	// Fallback 表示情绪分布来自本地启发式。
	Fallback bool `json:"fallback"`
}

// Service 是远端评分服务的客户端，可并发使用。
type Service struct {
	cfg    Config
	client *http.Client
}

type textRequest struct {
	Text string `json:"text"`
}

type emotionResponse struct {
	Emotions []chat.EmotionScore `json:"emotions"`
}

type ironyResponse struct {
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Intent bool    `json:"intent"`
}

// NewService 创建情绪分析服务。client 为 nil 时使用按 Timeout 配置的默认客户端。
func NewService(cfg Config, client *http.Client) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Service{cfg: cfg, client: client}
}

// Enabled 返回是否会调用远端服务。
func (s *Service) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.cfg.BaseURL != ""
}

// Analyze 并发请求情绪与反讽信号。任何失败都不会向上传播：情绪回退到启发式，反讽视为无信号。
func (s *Service) Analyze(ctx context.Context, text string) Result {
	var (
		emotions []chat.EmotionScore
		irony    ironyResponse
		result   Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		emotions, err = s.ScoreEmotions(gctx, text)
		if err != nil && !errors.Is(err, ErrDisabled) {
			log.Printf("[emotion] remote scoring failed, use heuristic: %v", err)
			metrics.RecordEmotionFallback("emotions")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		irony, err = s.scoreIrony(gctx, text)
		if err != nil && !errors.Is(err, ErrDisabled) {
			log.Printf("[emotion] irony scoring failed, ignore signal: %v", err)
			metrics.RecordEmotionFallback("irony")
		}
		return nil
	})
	_ = g.Wait()

	if len(emotions) == 0 {
		emotions = analysis.Score(text)
		result.Fallback = true
	}
	result.Emotions = emotions
	result.Irony = sarcasm.Irony{Label: irony.Label, Score: irony.Score}
	result.Intent = irony.Intent
	return result
}

// ScoreEmotions 调用 /predict_all，返回按分数降序的情绪列表。
func (s *Service) ScoreEmotions(ctx context.Context, text string) ([]chat.EmotionScore, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	var resp emotionResponse
	if err := s.post(ctx, "/predict_all", text, &resp); err != nil {
		return nil, err
	}
	return normalize(resp.Emotions), nil
}

// ScoreIrony 调用反讽模型。
func (s *Service) ScoreIrony(ctx context.Context, text string) (sarcasm.Irony, error) {
	resp, err := s.scoreIrony(ctx, text)
	if err != nil {
		return sarcasm.Irony{}, err
	}
	return sarcasm.Irony{Label: resp.Label, Score: resp.Score}, nil
}

func (s *Service) scoreIrony(ctx context.Context, text string) (ironyResponse, error) {
	if !s.Enabled() || s.cfg.IronyPath == "" {
		return ironyResponse{}, ErrDisabled
	}
	var resp ironyResponse
	if err := s.post(ctx, s.cfg.IronyPath, text, &resp); err != nil {
		return ironyResponse{}, err
	}
	return resp, nil
}

func (s *Service) post(ctx context.Context, path, text string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(textRequest{Text: text})
	if err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// normalize 丢弃无效条目，并按分数降序排列。
func normalize(scores []chat.EmotionScore) []chat.EmotionScore {
	out := make([]chat.EmotionScore, 0, len(scores))
	for _, sc := range scores {
		label := strings.ToLower(strings.TrimSpace(sc.Label))
		if label == "" || math.IsNaN(sc.Score) || math.IsInf(sc.Score, 0) {
			continue
		}
		out = append(out, chat.EmotionScore{Label: label, Score: math.Max(0, math.Min(1, sc.Score))})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
