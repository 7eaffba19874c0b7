package buffers

import "testing"

func TestGetReturnsCorrectSize(t *testing.T) {
	buf := Get()
	if buf == nil {
		t.Fatal("Get returned nil")
	}
	if len(*buf) != Size {
		t.Errorf("buffer size = %d, want %d", len(*buf), Size)
	}
	Put(buf)
}

func TestPutWrongSizeIsDropped(t *testing.T) {
	wrongSize := make([]byte, 1024)
	Put(&wrongSize) // must not panic
}

func TestPutNilIsNoop(t *testing.T) {
	Put(nil) // must not panic
}

func TestConcurrentGetPut(t *testing.T) {
	const goroutines = 10
	const iterations = 100
	done := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				buf := Get()
				(*buf)[0] = byte(j)
				Put(buf)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}
}
