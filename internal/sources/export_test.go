package sources

import (
	"context"

	"github.com/openrdap/rdap"

	"github.com/0x6d61/reconcore/internal/gateway"
)

// テストから内部状態を差し替えるためのフック。

func (c *CRTSh) SetBaseURL(u string) { c.baseURL = u }

func (h *HackerTarget) SetBaseURL(u string) { h.baseURL = u }

func (c *CRTSh) Handle(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
	return c.handle(ctx, args)
}

func (h *HackerTarget) Handle(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
	return h.handle(ctx, args)
}

func (r *Resolver) Handle(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
	return r.handle(ctx, args)
}

func DomainIntelAttrs(d *rdap.Domain) map[string]any { return domainIntelAttrs(d) }
