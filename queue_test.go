package persistq

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/accurit/persistq/codec"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestQueue(t *testing.T, blockSize, fileSize int32) *Queue[string] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.bin")
	q, err := Open[string](path, blockSize, fileSize, codec.JSON[string]())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestBasicFIFOOrder(t *testing.T) {
	q := openTestQueue(t, 32, 4096)

	for _, v := range []string{"a", "b", "c"} {
		ok, err := q.TryOffer(v)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := q.TryPoll()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok, err := q.TryPoll()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSizeAndIsEmptyTrackOccupancy(t *testing.T) {
	q := openTestQueue(t, 32, 4096)
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Size())

	_, err := q.TryOffer("x")
	require.NoError(t, err)
	assert.False(t, q.IsEmpty())
	assert.Equal(t, 1, q.Size())

	_, _, err = q.TryPoll()
	require.NoError(t, err)
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Size())
}

func TestPeekDoesNotConsumeAndIsRepeatable(t *testing.T) {
	q := openTestQueue(t, 32, 4096)
	_, err := q.TryOffer("only")
	require.NoError(t, err)

	v1, ok, err := q.Peek()
	require.NoError(t, err)
	require.True(t, ok)
	v2, ok, err := q.Peek()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "only", v1)
	assert.Equal(t, "only", v2)
	assert.Equal(t, 1, q.Size())
}

func TestElementAndRemoveFailOnEmpty(t *testing.T) {
	q := openTestQueue(t, 32, 4096)

	_, err := q.Element()
	assert.ErrorIs(t, err, ErrNoSuchElement)

	_, err = q.Remove()
	assert.ErrorIs(t, err, ErrNoSuchElement)
}

func TestWrapAroundPreservesOrder(t *testing.T) {
	q := openTestQueue(t, 16, 256)

	var produced []string
	for i := 0; i < 40; i++ {
		v := strconv.Itoa(i)
		ok, err := q.TryOffer(v)
		require.NoError(t, err)
		if !ok {
			_, _, err := q.TryPoll()
			require.NoError(t, err)
			produced = produced[1:]
			ok, err = q.TryOffer(v)
			require.NoError(t, err)
			require.True(t, ok)
		}
		produced = append(produced, v)
	}

	var drained []string
	for {
		v, ok, err := q.TryPoll()
		require.NoError(t, err)
		if !ok {
			break
		}
		drained = append(drained, v)
	}
	assert.Equal(t, produced, drained)
}

func TestRestartRecoversState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.bin")

	q1, err := Open[string](path, 32, 4096, codec.JSON[string]())
	require.NoError(t, err)
	for _, v := range []string{"a", "b", "c"} {
		_, err := q1.TryOffer(v)
		require.NoError(t, err)
	}
	_, _, err = q1.TryPoll()
	require.NoError(t, err)
	require.NoError(t, q1.Close())

	q2, err := Open[string](path, 32, 4096, codec.JSON[string]())
	require.NoError(t, err)
	defer q2.Close()

	assert.Equal(t, 2, q2.Size())
	v, ok, err := q2.TryPoll()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestOpenRejectsMismatchedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.bin")

	q1, err := Open[string](path, 32, 4096, codec.JSON[string]())
	require.NoError(t, err)
	require.NoError(t, q1.Close())

	_, err = Open[string](path, 64, 4096, codec.JSON[string]())
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestOpenRejectsBadConstructorArguments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.bin")

	_, err := Open[string](path, 2, 4096, codec.JSON[string]())
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = Open[string](path, 32, 10, codec.JSON[string]())
	assert.ErrorIs(t, err, ErrIllegalArgument)

	_, err = Open[string](path, 33, 100, codec.JSON[string]())
	assert.ErrorIs(t, err, ErrIllegalArgument)
}

func TestTryOfferFailsWhenFull(t *testing.T) {
	q := openTestQueue(t, 16, 64) // first_usable=32 -> 2 usable blocks of 16 bytes

	filled := 0
	for {
		ok, err := q.TryOffer("x")
		require.NoError(t, err)
		if !ok {
			break
		}
		filled++
	}
	assert.Greater(t, filled, 0)

	ok, err := q.TryOffer("x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddFailsWithErrCapacity(t *testing.T) {
	q := openTestQueue(t, 16, 48)
	for {
		ok, err := q.TryOffer("x")
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	err := q.Add("x")
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestOversizedRecordRejectedByOfferAndBlocksPut(t *testing.T) {
	// block_size=8, file_size=40: first_usable=24, usable_blocks=2, so the
	// largest record that ever fits is usable_blocks*block_size-4 = 12
	// bytes. A 13-byte record needs 3 blocks, one more than the ring can
	// ever hold, regardless of current occupancy.
	path := filepath.Join(t.TempDir(), "oversized.bin")
	q, err := Open[string](path, 8, 40, rawStringCodec{})
	require.NoError(t, err)
	defer q.Close()

	oversized := strings.Repeat("x", 13)

	ok, err := q.TryOffer(oversized)
	require.NoError(t, err)
	assert.False(t, ok)

	err = q.Add(oversized)
	assert.ErrorIs(t, err, ErrCapacity)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = q.Put(ctx, oversized)
	assert.ErrorIs(t, err, ErrInterrupted)

	// A record that fits exactly (12 bytes) still succeeds on an otherwise
	// empty ring.
	ok, err = q.TryOffer(strings.Repeat("y", 12))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutBlocksUntilRoomAndCanBeCancelled(t *testing.T) {
	q := openTestQueue(t, 16, 48)
	for {
		ok, err := q.TryOffer("x")
		require.NoError(t, err)
		if !ok {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Put(ctx, "y")
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestPutUnblocksWhenSpaceFreed(t *testing.T) {
	q := openTestQueue(t, 16, 48)
	for {
		ok, err := q.TryOffer("x")
		require.NoError(t, err)
		if !ok {
			break
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- q.Put(context.Background(), "y")
	}()

	time.Sleep(20 * time.Millisecond)
	_, _, err := q.TryPoll()
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Put never unblocked after space was freed")
	}
}

func TestTakeBlocksUntilElementArrives(t *testing.T) {
	q := openTestQueue(t, 32, 4096)

	results := make(chan string, 1)
	go func() {
		v, err := q.Take(context.Background())
		if err != nil {
			results <- "error: " + err.Error()
			return
		}
		results <- v
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := q.TryOffer("arrived")
	require.NoError(t, err)

	select {
	case v := <-results:
		assert.Equal(t, "arrived", v)
	case <-time.After(2 * time.Second):
		t.Fatal("Take never returned after an offer")
	}
}

func TestOfferTimeoutReturnsFalseOnTimeout(t *testing.T) {
	q := openTestQueue(t, 16, 48)
	for {
		ok, err := q.TryOffer("x")
		require.NoError(t, err)
		if !ok {
			break
		}
	}

	ok, err := q.OfferTimeout(20*time.Millisecond, "y")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPollTimeoutReturnsFalseOnTimeout(t *testing.T) {
	q := openTestQueue(t, 32, 4096)
	_, ok, err := q.PollTimeout(20 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearResetsQueueToEmpty(t *testing.T) {
	q := openTestQueue(t, 32, 4096)
	for _, v := range []string{"a", "b", "c"} {
		_, err := q.TryOffer(v)
		require.NoError(t, err)
	}

	require.NoError(t, q.Clear())
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Size())

	ok, err := q.TryOffer("fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	q := openTestQueue(t, 32, 4096)
	require.NoError(t, q.Close())

	_, err := q.TryOffer("x")
	assert.ErrorIs(t, err, ErrIllegalState)

	assert.NoError(t, q.Close()) // idempotent
}

func TestRemainingCapacityIsAlwaysMax(t *testing.T) {
	q := openTestQueue(t, 32, 4096)
	first := q.RemainingCapacity()
	_, err := q.TryOffer("x")
	require.NoError(t, err)
	assert.Equal(t, first, q.RemainingCapacity())
}

func TestDrainToReturnsEverythingCurrentlyAvailable(t *testing.T) {
	q := openTestQueue(t, 32, 4096)
	for _, v := range []string{"a", "b", "c", "d"} {
		_, err := q.TryOffer(v)
		require.NoError(t, err)
	}

	var out []string
	n, err := q.DrainTo(&out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"a", "b", "c", "d"}, out)
	assert.True(t, q.IsEmpty())
}

func TestDrainToRespectsMax(t *testing.T) {
	q := openTestQueue(t, 32, 4096)
	for _, v := range []string{"a", "b", "c", "d"} {
		_, err := q.TryOffer(v)
		require.NoError(t, err)
	}

	var out []string
	n, err := q.DrainTo(&out, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, out)
	assert.Equal(t, 2, q.Size())

	n, err = q.DrainTo(&out, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b", "c", "d"}, out)
	assert.True(t, q.IsEmpty())
}

// rawStringCodec encodes a string as exactly its own bytes, with no
// framing beyond the queue's own length prefix, so tests can control
// encoded record size precisely.
type rawStringCodec struct{}

func (rawStringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (rawStringCodec) Decode(b []byte) (string, error) { return string(b), nil }

func TestZeroLengthPayloadFitsInSmallestRing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.bin")
	q, err := Open[string](path, 4, 24, rawStringCodec{})
	require.NoError(t, err)
	defer q.Close()

	ok, err := q.TryOffer("")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.TryOffer("")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentProducersAndConsumersPreserveAllElements(t *testing.T) {
	q := openTestQueue(t, 32, 8192)

	const producers = 4
	const perProducer = 50
	const total = producers * perProducer

	producerGroup, pctx := errgroup.WithContext(context.Background())
	for p := 0; p < producers; p++ {
		p := p
		producerGroup.Go(func() error {
			for i := 0; i < perProducer; i++ {
				if err := q.Put(pctx, strconv.Itoa(p*1000+i)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	got := make(map[string]bool)
	var mu sync.Mutex
	consumerGroup, cctx := errgroup.WithContext(context.Background())
	for c := 0; c < 2; c++ {
		consumerGroup.Go(func() error {
			for {
				ctx, cancel := context.WithTimeout(cctx, 200*time.Millisecond)
				v, err := q.Take(ctx)
				cancel()
				if err != nil {
					mu.Lock()
					done := len(got) >= total
					mu.Unlock()
					if done {
						return nil
					}
					continue
				}
				mu.Lock()
				got[v] = true
				mu.Unlock()
			}
		})
	}

	require.NoError(t, producerGroup.Wait())
	require.NoError(t, consumerGroup.Wait())
	assert.Len(t, got, total)
}

func TestTranslateCancellationWrapsErrInterrupted(t *testing.T) {
	err := translateCancellation(context.Canceled)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, errors.Is(err, context.Canceled))
}
