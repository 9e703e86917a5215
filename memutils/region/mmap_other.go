//go:build !unix

package region

import (
	"github.com/cockroachdb/errors"
)

// MmapProvider is only available on unix platforms
type MmapProvider struct{}

var _ Provider = &MmapProvider{}

// NewMmapProvider always fails on platforms without mmap
func NewMmapProvider(maxSize int) (*MmapProvider, error) {
	return nil, errors.New("mmap provider is not supported on this platform")
}

func (p *MmapProvider) Grow(n int) (int, error) {
	return 0, errors.New("mmap provider is not supported on this platform")
}

func (p *MmapProvider) Bytes() []byte { return nil }

func (p *MmapProvider) MaxSize() int { return 0 }

func (p *MmapProvider) Close() error { return nil }
