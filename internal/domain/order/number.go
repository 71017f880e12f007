package order

import (
	"crypto/rand"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const (
	numberPrefix  = "CF"
	displayPrefix = "CO"
	suffixLen     = 6
	displayTail   = 5
	suffixAlpha   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// Random bytes at or above suffixReject are redrawn.
	suffixReject  = 256 / len(suffixAlpha) * len(suffixAlpha)

	// Sized for a long-running process; false positives only cost a retry.
	issuedCapacity = 1_000_000
	issuedFPR      = 0.0001
	maxAttempts    = 8
)

// Generator issues order numbers of the form CF<epoch millis>-<6 upper alnum>.
// Numbers already issued by this process are remembered in a bloom filter
// and a probable repeat is regenerated.
type Generator struct {
	now  func() time.Time
	rand io.Reader

	mu     sync.Mutex
	issued *bloom.BloomFilter
}

// NewGenerator creates a Generator using the wall clock and crypto/rand.
func NewGenerator() *Generator {
	return &Generator{
		now:    time.Now,
		rand:   rand.Reader,
		issued: bloom.NewWithEstimates(issuedCapacity, issuedFPR),
	}
}

// Next returns a fresh order number.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for range maxAttempts {
		n, err := g.candidate()
		if err != nil {
			return "", err
		}
		if g.issued.TestString(n) {
			continue
		}
		g.issued.AddString(n)
		return n, nil
	}
	return "", errors.Errorf("no unused order number after %d attempts", maxAttempts)
}

func (g *Generator) candidate() (string, error) {
	buf := make([]byte, 0, len(numberPrefix)+13+1+suffixLen)
	buf = append(buf, numberPrefix...)
	buf = strconv.AppendInt(buf, g.now().UnixMilli(), 10)
	buf = append(buf, '-')

	var raw [suffixLen]byte
	for need := suffixLen; need > 0; {
		if _, err := io.ReadFull(g.rand, raw[:need]); err != nil {
			return "", errors.Wrap(err, "read random suffix")
		}
		for _, b := range raw[:need] {
			if b >= suffixReject {
				continue
			}
			buf = append(buf, suffixAlpha[int(b)%len(suffixAlpha)])
			need--
		}
	}
	return string(buf), nil
}

// DisplayCode derives the customer-facing code CO<YYYYMMDD><last 5 of id>
// from the order's creation date in loc (UTC when nil). It never changes
// for a given order.
func (o *Order) DisplayCode(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	tail := o.ID
	if len(tail) > displayTail {
		tail = tail[len(tail)-displayTail:]
	}
	return displayPrefix + o.CreatedAt.In(loc).Format("20060102") + tail
}
