//go:build linux

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Linux GPIO character device driver
// ============================================================================
// Requests one line-event fd per pin from /dev/gpiochipN (both edges), then
// multiplexes all of them through a single epoll loop. The kernel timestamps
// and queues events per line, so nothing is lost while we are busy parsing.
// ============================================================================

// gpioeventRequest mirrors struct gpioevent_request from <linux/gpio.h>.
type gpioeventRequest struct {
	LineOffset    uint32
	HandleFlags   uint32
	EventFlags    uint32
	ConsumerLabel [32]byte
	Fd            int32
}

// gpioeventData mirrors struct gpioevent_data from <linux/gpio.h>.
type gpioeventData struct {
	Timestamp uint64
	ID        uint32
	_         uint32 // alignment padding
}

// Event IDs reported in gpioeventData.ID.
const (
	gpioeventRisingEdge  = 0x01
	gpioeventFallingEdge = 0x02
)

// Request flags and ioctl number mirrored from <linux/gpio.h> (v1 ABI);
// x/sys/unix does not export these.
const (
	gpioHandleRequestInput    = 0x01       // GPIOHANDLE_REQUEST_INPUT
	gpioEventRequestBothEdges = 0x03       // GPIOEVENT_REQUEST_BOTH_EDGES
	gpioGetLineEventIoctl     = 0xc030b404 // GPIO_GET_LINEEVENT_IOCTL = _IOWR(0xB4, 0x04, struct gpioevent_request)
)

// cdevWatcher watches pins through GPIO line-event file descriptors.
type cdevWatcher struct {
	chipFd  int
	lineFds map[int]Channel // line event fd -> channel
	logger  *slog.Logger
}

// newCdevWatcher opens the chip and requests a both-edges line event fd for
// every pin.
func newCdevWatcher(chip string, pins map[Channel]int, logger *slog.Logger) (*cdevWatcher, error) {
	chipFd, err := unix.Open(chip, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", chip, err)
	}

	w := &cdevWatcher{
		chipFd:  chipFd,
		lineFds: make(map[int]Channel, len(pins)),
		logger:  logger,
	}

	for ch, offset := range pins {
		req := gpioeventRequest{
			LineOffset:  uint32(offset),
			HandleFlags: gpioHandleRequestInput,
			EventFlags:  gpioEventRequestBothEdges,
		}
		copy(req.ConsumerLabel[:], "volknobd")

		_, _, errno := unix.Syscall(
			unix.SYS_IOCTL,
			uintptr(chipFd),
			uintptr(gpioGetLineEventIoctl),
			uintptr(unsafe.Pointer(&req)),
		)
		if errno != 0 {
			w.Close()
			return nil, fmt.Errorf("request line %d (channel %s): %w", offset, ch, errno)
		}
		w.lineFds[int(req.Fd)] = ch
	}

	return w, nil
}

// Run multiplexes all line fds through epoll until ctx is canceled.
func (w *cdevWatcher) Run(ctx context.Context, edges chan<- rawEdge) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		w.logger.Error("epoll_create1 failed", "error", err)
		return
	}
	defer unix.Close(epfd)

	for fd := range w.lineFds {
		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			w.logger.Error("epoll_ctl_add failed", "fd", fd, "error", err)
			return
		}
	}

	// Reusable buffers. A single read can return several queued events.
	const maxEvents = 8
	epollEvents := make([]unix.EpollEvent, maxEvents)
	evSize := binary.Size(gpioeventData{})
	buf := make([]byte, 16*evSize)

	for {
		if ctx.Err() != nil {
			return
		}

		// Timeout so cancellation is noticed without a wakeup fd.
		n, err := unix.EpollWait(epfd, epollEvents, 1000)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			w.logger.Error("epoll_wait failed", "error", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			ch, ok := w.lineFds[fd]
			if !ok {
				continue
			}

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				w.logger.Error("gpio line error/hangup", "channel", ch, "fd", fd)
				return
			}

			nr, err := unix.Read(fd, buf)
			if err != nil {
				if err == syscall.EINTR {
					continue
				}
				w.logger.Error("gpio line read failed", "channel", ch, "error", err)
				return
			}

			reader := bytes.NewReader(buf[:nr])
			for reader.Len() >= evSize {
				var ev gpioeventData
				if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
					// Skip malformed events
					break
				}

				level := 0
				if ev.ID == gpioeventRisingEdge {
					level = 1
				}

				select {
				case edges <- rawEdge{Channel: ch, Level: level}:
				default:
					w.logger.Warn("edge buffer full, dropping edge", "channel", ch)
				}
			}
		}
	}
}

// Close releases all line fds and the chip fd.
func (w *cdevWatcher) Close() error {
	for fd := range w.lineFds {
		_ = unix.Close(fd)
	}
	w.lineFds = map[int]Channel{}
	if w.chipFd >= 0 {
		err := unix.Close(w.chipFd)
		w.chipFd = -1
		return err
	}
	return nil
}
