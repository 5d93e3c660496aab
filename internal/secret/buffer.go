// Package secret holds plaintext key material outside the Go heap for the
// duration of a single operation. Memory is mapped anonymously, locked
// against swap when the process is allowed to, excluded from core dumps
// and zeroed on Close.
package secret

import (
	"errors"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sys/unix"
)

var log = logging.Logger("keyvault/secret")

var ErrClosed = errors.New("secret: buffer is closed")

// Buffer is a zero-on-close holder for secret bytes. It must not be copied.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	length int
	locked bool
	closed bool
}

// New maps a buffer of size bytes. mlock failures (RLIMIT_MEMLOCK in
// containers) are tolerated; the buffer is still wiped on Close.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap failed: %w", err)
	}

	b := &Buffer{data: data, length: size}
	if err := unix.Mlock(data); err != nil {
		log.Debugf("mlock unavailable, continuing unlocked: %v", err)
	} else {
		b.locked = true
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		log.Debugf("madvise(MADV_DONTDUMP) unavailable: %v", err)
	}
	return b, nil
}

// FromBytes copies source into a new buffer and zeroes source in place
func FromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: cannot create buffer from empty source")
	}
	b, err := New(len(source))
	if err != nil {
		Wipe(source)
		return nil, err
	}
	copy(b.data, source)
	Wipe(source)
	return b, nil
}

// Bytes returns the secret. The slice points into the mapped region and
// must not be retained after Close.
func (b *Buffer) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.data[:b.length], nil
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Closed reports whether Close has run
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close zeroes and unmaps the buffer. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	Wipe(b.data)

	var firstErr error
	if b.locked {
		if err := unix.Munlock(b.data); err != nil {
			firstErr = fmt.Errorf("secret: munlock failed: %w", err)
		}
	}
	if err := unix.Munmap(b.data); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("secret: munmap failed: %w", err)
	}
	b.data = nil
	return firstErr
}

// Wipe zeroes p in place
func Wipe(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
