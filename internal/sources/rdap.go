package sources

import (
	"context"
	"strings"

	"github.com/openrdap/rdap"
	"github.com/sirupsen/logrus"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/gateway"
)

// RDAP はドメイン登録情報（WHOIS 後継プロトコル）のインテルソース。
type RDAP struct {
	client *rdap.Client
	log    *logrus.Entry
}

// NewRDAP は RDAP ソースを作る。
func NewRDAP(client *rdap.Client, log *logrus.Entry) *RDAP {
	if client == nil {
		client = &rdap.Client{}
	}
	return &RDAP{client: client, log: log}
}

func (r *RDAP) handle(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
	domain := domainArg(args)
	if domain == "" {
		return nil, fault.New(fault.KindValidation, "domain is required")
	}

	req := &rdap.Request{
		Type:  rdap.DomainRequest,
		Query: strings.TrimSuffix(domain, "."),
	}
	resp, err := r.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "rdap query failed")
	}
	d, ok := resp.Object.(*rdap.Domain)
	if !ok || d == nil {
		return nil, fault.Newf(fault.KindTransport, "unexpected rdap response type %T", resp.Object)
	}

	attrs := domainIntelAttrs(d)
	r.log.WithFields(logrus.Fields{"domain": domain, "attrs": len(attrs)}).Info("rdap lookup finished")
	return &gateway.RawResult{Payload: map[string]any{
		"records": []map[string]any{
			{"kind": "domain", "value": domain, "attrs": attrs},
		},
	}}, nil
}

// domainIntelAttrs は RDAP 応答を属性マップに畳む。
func domainIntelAttrs(d *rdap.Domain) map[string]any {
	attrs := make(map[string]any)
	if d.Handle != "" {
		attrs["rdap_handle"] = d.Handle
	}
	if len(d.Status) > 0 {
		attrs["status"] = strings.Join(d.Status, ",")
	}
	for _, ev := range d.Events {
		switch ev.Action {
		case "registration":
			attrs["registered"] = ev.Date
		case "expiration":
			attrs["expires"] = ev.Date
		case "last changed":
			attrs["updated"] = ev.Date
		}
	}
	for _, ent := range d.Entities {
		for _, role := range ent.Roles {
			if role == "registrar" && ent.Handle != "" {
				attrs["registrar"] = ent.Handle
			}
		}
	}
	var ns []string
	for _, n := range d.Nameservers {
		if n.LDHName != "" {
			ns = append(ns, strings.ToLower(strings.TrimSuffix(n.LDHName, ".")))
		}
	}
	if len(ns) > 0 {
		attrs["nameservers"] = strings.Join(ns, ",")
	}
	return attrs
}
