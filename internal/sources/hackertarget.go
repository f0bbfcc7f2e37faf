package sources

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/gateway"
)

const hackerTargetBaseURL = "https://api.hackertarget.com"

// HackerTarget は hostsearch API の受動サブドメインソース。
// 無料枠のレートリミットが厳しいのでトークンバケットで抑える。
type HackerTarget struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	log     *logrus.Entry
}

// NewHackerTarget は HackerTarget ソースを作る。apiKey は空でもよい。
func NewHackerTarget(apiKey string, log *logrus.Entry) *HackerTarget {
	return &HackerTarget{
		http:    newHTTPClient(30 * time.Second),
		baseURL: hackerTargetBaseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:     log,
	}
}

func (h *HackerTarget) handle(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
	domain := domainArg(args)
	if domain == "" {
		return nil, fault.New(fault.KindValidation, "domain is required")
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "rate limit wait cancelled")
	}

	q := url.Values{}
	q.Set("q", domain)
	if h.apiKey != "" {
		q.Set("apikey", h.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/hostsearch/?"+q.Encode(), nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "build hostsearch request")
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "hostsearch request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fault.New(fault.KindTransport, "hackertarget rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fault.Newf(fault.KindTransport, "hackertarget returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "read hostsearch response")
	}
	text := strings.TrimSpace(string(body))

	// API エラーは本文で返ってくる（"error check your search query" 等）
	if strings.Contains(strings.ToLower(text), "error") {
		h.log.WithField("body", text).Warn("hackertarget API error")
		return &gateway.RawResult{}, nil
	}

	// 1行1ホスト、"host,ip" 形式
	var records []map[string]any
	for _, line := range strings.Split(text, "\n") {
		host, ip, ok := strings.Cut(strings.TrimSpace(line), ",")
		if !ok {
			continue
		}
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" || !strings.HasSuffix(host, domain) {
			continue
		}
		rec := map[string]any{"kind": "domain", "value": host}
		if ip = strings.TrimSpace(ip); ip != "" {
			rec["attrs"] = map[string]any{"ip": ip}
		}
		records = append(records, rec)
	}

	h.log.WithFields(logrus.Fields{"domain": domain, "found": len(records)}).Info("hackertarget search finished")
	return &gateway.RawResult{Payload: map[string]any{"records": records}}, nil
}
