package recon

import (
	"github.com/0x6d61/reconcore/internal/fuse"
	"github.com/0x6d61/reconcore/internal/gateway"
)

func RecordsFrom(res *gateway.Result, lineKind fuse.Kind) []fuse.Record {
	return recordsFrom(res, lineKind)
}
