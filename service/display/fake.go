package display

import (
	"sync"

	"gocv.io/x/gocv"
)

// FakeService records shown frames. After the n-th Show, PollKey returns
// Keys[n] when present.
type FakeService struct {
	Keys map[int]int
	// OnShow runs after each Show with the running count
	OnShow func(shown int)

	mu     sync.Mutex
	shown  int
	polled int
	last   []byte
	rows   int
	cols   int
	closed bool
}

func NewFake() *FakeService {
	return &FakeService{
		Keys: map[int]int{},
	}
}

func (svc *FakeService) Show(_ string, frame gocv.Mat) error {
	defer frame.Close()

	svc.mu.Lock()
	svc.shown++
	svc.last = frame.ToBytes()
	svc.rows = frame.Rows()
	svc.cols = frame.Cols()
	shown := svc.shown
	svc.mu.Unlock()

	if svc.OnShow != nil {
		svc.OnShow(shown)
	}
	return nil
}

func (svc *FakeService) PollKey(_ int) (int, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.polled == svc.shown {
		return 0, false
	}
	svc.polled = svc.shown

	key, ok := svc.Keys[svc.shown]
	return key, ok
}

func (svc *FakeService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.closed = true
	return nil
}

func (svc *FakeService) Shown() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.shown
}

// Last returns the bytes and size of the last shown frame.
func (svc *FakeService) Last() ([]byte, int, int) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.last, svc.rows, svc.cols
}

func (svc *FakeService) Closed() bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.closed
}
