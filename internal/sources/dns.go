package sources

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/gateway"
)

// DefaultNameservers はフォールバック用のパブリックリゾルバー。
var DefaultNameservers = []string{
	"1.1.1.1:53",
	"8.8.8.8:53",
	"8.8.4.4:53",
}

// queryTypes は解決対象のレコード種別。
var queryTypes = []uint16{
	dns.TypeA,
	dns.TypeAAAA,
	dns.TypeCNAME,
	dns.TypeMX,
	dns.TypeNS,
	dns.TypeTXT,
}

// Resolver はネームサーバーのフェイルオーバー付き DNS 解決ソース。
type Resolver struct {
	servers []string
	client  dns.Client
	log     *logrus.Entry
}

// NewResolver は Resolver を作る。servers は "ip:port" 形式。
func NewResolver(servers []string, log *logrus.Entry) *Resolver {
	if len(servers) == 0 {
		servers = DefaultNameservers
	}
	return &Resolver{servers: servers, log: log}
}

func (r *Resolver) handle(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
	domain := domainArg(args)
	if domain == "" {
		return nil, fault.New(fault.KindValidation, "domain is required")
	}

	attrs := make(map[string]any)
	answered := false
	for _, qtype := range queryTypes {
		msg := dns.Msg{
			Question: []dns.Question{{
				Name:   dns.Fqdn(domain),
				Qclass: dns.ClassINET,
				Qtype:  qtype,
			}},
			MsgHdr: dns.MsgHdr{
				Opcode:           dns.OpcodeQuery,
				RecursionDesired: true,
			},
		}
		reply, err := r.exchange(ctx, &msg)
		if err != nil {
			return nil, err
		}
		if len(reply.Answer) > 0 {
			answered = true
			collectAnswers(attrs, reply.Answer)
		}
	}

	if !answered {
		// NXDOMAIN 等。失敗ではなく「生存ホストなし」として返す。
		return &gateway.RawResult{}, nil
	}
	return &gateway.RawResult{Payload: map[string]any{
		"records": []map[string]any{
			{"kind": "domain", "value": domain, "attrs": attrs},
		},
	}}, nil
}

// exchange はサーバーを順に試しながらクエリを送る。
// タイムアウトは次のサーバーで再試行、それ以外は即確定。
func (r *Resolver) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	var reply *dns.Msg
	i := 0
	op := func() error {
		if i >= len(r.servers) {
			i = 0
		}
		server := r.servers[i]

		qctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		in, _, err := r.client.ExchangeContext(qctx, msg, server)
		if err != nil {
			i++
			if errors.Is(err, context.DeadlineExceeded) ||
				strings.Contains(err.Error(), "timeout") ||
				strings.Contains(err.Error(), "temporary failure") {
				return err
			}
			return backoff.Permanent(err)
		}
		reply = in
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "dns query failed on all servers")
	}
	return reply, nil
}

func collectAnswers(attrs map[string]any, answers []dns.RR) {
	appendList := func(key, val string) {
		if cur, ok := attrs[key].(string); ok && cur != "" {
			attrs[key] = cur + "," + val
			return
		}
		attrs[key] = val
	}
	for _, rr := range answers {
		switch a := rr.(type) {
		case *dns.A:
			if _, ok := attrs["ip"]; !ok {
				attrs["ip"] = a.A.String()
			}
			appendList("ips", a.A.String())
		case *dns.AAAA:
			appendList("ipv6", a.AAAA.String())
		case *dns.CNAME:
			attrs["cname"] = strings.TrimSuffix(a.Target, ".")
		case *dns.MX:
			appendList("mx", strings.TrimSuffix(a.Mx, "."))
		case *dns.NS:
			appendList("ns", strings.TrimSuffix(a.Ns, "."))
		case *dns.TXT:
			appendList("txt", strings.Join(a.Txt, ""))
		}
	}
}
