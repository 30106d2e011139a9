package restyutil

import (
	"fmt"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

// InstrumentClient writes the full text of every completed exchange to `output`,
// numbered in the order responses arrive. A nil output is a no-op.
func InstrumentClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}

	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(&idcounter, 1)
		output.Write(
			fmt.Sprintf("%04d_%s.txt", id, res.Request.Method),
			formatHttpMessage(res),
		)
		return nil
	})
}
