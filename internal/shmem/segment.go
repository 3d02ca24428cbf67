// Package shmem implements the shared-memory message layer sitting on
// top of internal/wire: a sender allocates a named segment under
// /dev/shm, writes a marshalled payload into it, and hands the receiver
// a descriptor (path, size, offset) over the socket rather than the
// bytes themselves. It mirrors src/libuipc/shmem.c's
// uipc_msg_new/uipc_msg_alloc/uipc_msg_free and the send/ack/recv queue
// draining in uipc_process, translated from shm_open+mmap to Go's
// golang.org/x/sys/unix equivalents (Linux has no shm_open in x/sys/unix;
// /dev/shm is a tmpfs, so opening a file there with O_CREAT|O_EXCL is
// what glibc's own shm_open does under the hood).
package shmem

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/muonrun/internal/logging"
)

const shmDir = "/dev/shm"

// Segment is a single named, mmap'd region of shared memory.
type Segment struct {
	Path string
	fd   int
	data []byte
	size int
}

// New creates a fresh segment sized bytes long, named
// "/mu_{pid}_{fd}_{counter}" per spec; on the rare EEXIST collision (the
// original never saw one, since asprintf plus a per-handle monotonic
// counter was already unique within one process's lifetime) a uuid
// suffix is appended and the collision logged at Warn.
func New(pid, fd, counter int, size int) (*Segment, error) {
	name := fmt.Sprintf("mu_%d_%d_%d", pid, fd, counter)
	path := shmDir + "/" + name

	f, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0600)
	if err == unix.EEXIST {
		name = fmt.Sprintf("mu_%d_%d_%d_%s", pid, fd, counter, uuid.NewString()[:8])
		path = shmDir + "/" + name
		logging.Default().Warn("shmem: segment name collision, falling back to uuid suffix", "path", path)
		f, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0600)
	}
	if err != nil {
		return nil, fmt.Errorf("shmem: open %s: %w", path, err)
	}

	if err := unix.Ftruncate(f, int64(size)); err != nil {
		unix.Close(f)
		unix.Unlink(path)
		return nil, fmt.Errorf("shmem: ftruncate %s: %w", path, err)
	}

	data, err := unix.Mmap(f, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(f)
		unix.Unlink(path)
		return nil, fmt.Errorf("shmem: mmap %s: %w", path, err)
	}

	return &Segment{Path: path, fd: f, data: data, size: size}, nil
}

// Open maps an existing segment created by the peer process, identified
// by the path carried in a wire.Message descriptor.
func Open(path string, size int) (*Segment, error) {
	f, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shmem: open existing %s: %w", path, err)
	}
	data, err := unix.Mmap(f, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("shmem: mmap existing %s: %w", path, err)
	}
	return &Segment{Path: path, fd: f, data: data, size: size}, nil
}

// Bytes exposes the segment's backing memory for marshal/unmarshal.
func (s *Segment) Bytes() []byte {
	return s.data
}

// Unlink removes the segment's name from the filesystem without
// affecting already-open mappings, mirroring shm_unlink semantics.
func (s *Segment) Unlink() error {
	if err := unix.Unlink(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shmem: unlink %s: %w", s.Path, err)
	}
	return nil
}

// Close unmaps and closes the segment's fd. It does not unlink — callers
// decide unlink timing based on the acked/unacked distinction (see
// Msg.Free).
func (s *Segment) Close() error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("shmem: munmap %s: %w", s.Path, err)
		}
		s.data = nil
	}
	return unix.Close(s.fd)
}
