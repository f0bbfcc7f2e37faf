package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/gateway"
)

const crtshBaseURL = "https://crt.sh/"

// CRTSh は Certificate Transparency ログ（crt.sh）のサブドメインソース。
type CRTSh struct {
	http             *http.Client
	baseURL          string
	includeWildcards bool
	log              *logrus.Entry
}

// NewCRTSh は crt.sh ソースを作る。
func NewCRTSh(log *logrus.Entry, includeWildcards bool) *CRTSh {
	return &CRTSh{
		http:             newHTTPClient(30 * time.Second),
		baseURL:          crtshBaseURL,
		includeWildcards: includeWildcards,
		log:              log,
	}
}

type ctEntry struct {
	NameValue string `json:"name_value"`
}

func (c *CRTSh) handle(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
	domain := domainArg(args)
	if domain == "" {
		return nil, fault.New(fault.KindValidation, "domain is required")
	}

	q := url.Values{}
	q.Set("q", "%."+domain)
	q.Set("output", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "build crt.sh request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "crt.sh request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fault.Newf(fault.KindTransport, "crt.sh returned status %d", resp.StatusCode)
	}

	var entries []ctEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "decode crt.sh response")
	}

	// 証明書の SAN は改行区切りで複数名を含む
	seen := make(map[string]struct{})
	for _, e := range entries {
		for _, name := range strings.Split(e.NameValue, "\n") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if strings.HasPrefix(name, "*") {
				if !c.includeWildcards {
					continue
				}
				name = strings.TrimPrefix(name, "*.")
			}
			if !strings.HasSuffix(name, domain) {
				continue
			}
			seen[name] = struct{}{}
		}
	}

	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	c.log.WithFields(logrus.Fields{"domain": domain, "found": len(domains)}).Info("crt.sh search finished")
	return &gateway.RawResult{Payload: map[string]any{"domains": domains}}, nil
}
