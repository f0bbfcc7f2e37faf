// Package sources は組み込みの発見ソース群。
// crt.sh / HackerTarget / DNS / RDAP を func バックエンドとして
// レジストリとゲートウェイに登録する。外部ツール（subprocess・rpc）と
// 同じ記述子・同じゲートを通る。
package sources

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/openrdap/rdap"
	"github.com/sirupsen/logrus"

	"github.com/0x6d61/reconcore/internal/config"
	"github.com/0x6d61/reconcore/internal/gateway"
	"github.com/0x6d61/reconcore/internal/phase"
	"github.com/0x6d61/reconcore/internal/recon"
	"github.com/0x6d61/reconcore/internal/registry"
)

// newHTTPClient は冪等 GET 用の再試行付き HTTP クライアントを作る。
// ここでの再試行は HTTP レベルの話で、オーケストレーターの
// ソース単位の再試行とは独立している。
func newHTTPClient(timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil
	return rc.StandardClient()
}

// RegisterAll は組み込みソースをレジストリとゲートウェイに登録する。
func RegisterAll(reg *registry.Registry, gw *gateway.Gateway, cfg *config.AppConfig, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	ct := NewCRTSh(log, cfg.Orchestrator.IncludeWildcards)
	ht := NewHackerTarget(cfg.HackerTargetAPIKey, log)
	res := NewResolver(cfg.DNS.Nameservers, log)
	rd := NewRDAP(&rdap.Client{}, log)

	builtins := []struct {
		desc *registry.Descriptor
		fn   gateway.Func
	}{
		{
			desc: &registry.Descriptor{
				Name:          "crtsh",
				Description:   "Certificate Transparency log search (crt.sh)",
				Tags:          []string{recon.TagSubdomainEnum},
				Backend:       registry.BackendFunc,
				AllowedPhases: []phase.Phase{phase.Informational},
				Params: []registry.ParamSpec{
					{Name: "domain", Type: "string", Required: true},
				},
			},
			fn: ct.handle,
		},
		{
			desc: &registry.Descriptor{
				Name:          "hackertarget",
				Description:   "HackerTarget hostsearch API",
				Tags:          []string{recon.TagSubdomainEnum},
				Backend:       registry.BackendFunc,
				AllowedPhases: []phase.Phase{phase.Informational},
				Params: []registry.ParamSpec{
					{Name: "domain", Type: "string", Required: true},
				},
			},
			fn: ht.handle,
		},
		{
			desc: &registry.Descriptor{
				Name:          "dns",
				Description:   "DNS record resolution (A/AAAA/CNAME/MX/NS/TXT)",
				Tags:          []string{recon.TagDNSResolve},
				Backend:       registry.BackendFunc,
				AllowedPhases: []phase.Phase{phase.Informational},
				Params: []registry.ParamSpec{
					{Name: "domain", Type: "string", Required: true},
				},
			},
			fn: res.handle,
		},
		{
			desc: &registry.Descriptor{
				Name:          "rdap",
				Description:   "RDAP domain registration intel",
				Tags:          []string{recon.TagDomainIntel},
				Backend:       registry.BackendFunc,
				AllowedPhases: []phase.Phase{phase.Informational},
				Params: []registry.ParamSpec{
					{Name: "domain", Type: "string", Required: true},
				},
			},
			fn: rd.handle,
		},
	}

	for _, b := range builtins {
		if err := reg.Register(b.desc); err != nil {
			return err
		}
		gw.RegisterFunc(b.desc.Name, b.fn)
	}
	return nil
}

func domainArg(args map[string]any) string {
	d, _ := args["domain"].(string)
	return d
}
