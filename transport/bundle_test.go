package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmowalk/treewalk/cmn"
)

func TestAlltoallIntsExchangesPerDestinationValues(t *testing.T) {
	const size = 3
	hub := NewHub(size)

	results := make([][]int64, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := hub.Rank(r)
			send := make([]int64, size)
			for d := 0; d < size; d++ {
				send[d] = int64(r*10 + d)
			}
			recv, err := c.AlltoallInts(send)
			require.NoError(t, err)
			results[r] = recv
		}()
	}
	wg.Wait()

	for r := 0; r < size; r++ {
		for s := 0; s < size; s++ {
			want := int64(s*10 + r)
			assert.Equal(t, want, results[r][s], "rank %d's recv from %d", r, s)
		}
	}
}

func TestAllreduceSumAcrossRanks(t *testing.T) {
	const size = 4
	hub := NewHub(size)

	sums := make([]int64, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := hub.Rank(r)
			sum, err := c.AllreduceSum(int64(r + 1))
			require.NoError(t, err)
			sums[r] = sum
		}()
	}
	wg.Wait()

	for r := 0; r < size; r++ {
		assert.Equal(t, int64(1+2+3+4), sums[r])
	}
}

func TestExchangeDeliversPostedSendsToPostedRecvs(t *testing.T) {
	hub := NewHub(2)
	var wg sync.WaitGroup
	var got0, got1 [4]byte

	wg.Add(2)
	go func() {
		defer wg.Done()
		c := hub.Rank(0)
		ex := c.NewExchange(7)
		ex.PostRecv(1, got0[:])
		ex.PostSend(1, []byte{1, 2, 3, 4})
		require.NoError(t, ex.Wait())
	}()
	go func() {
		defer wg.Done()
		c := hub.Rank(1)
		ex := c.NewExchange(7)
		ex.PostRecv(0, got1[:])
		ex.PostSend(0, []byte{5, 6, 7, 8})
		require.NoError(t, ex.Wait())
	}()
	wg.Wait()

	assert.Equal(t, [4]byte{5, 6, 7, 8}, got0)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, got1)
}

func TestExchangeShortReceiveIsAnError(t *testing.T) {
	hub := NewHub(2)
	var wg sync.WaitGroup
	var shortErr, longErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		c := hub.Rank(0)
		ex := c.NewExchange(9)
		buf := make([]byte, 2) // expects only 2 bytes
		ex.PostRecv(1, buf)
		shortErr = ex.Wait()
	}()
	go func() {
		defer wg.Done()
		c := hub.Rank(1)
		ex := c.NewExchange(9)
		ex.PostSend(0, []byte{1, 2, 3, 4}) // sends 4
		longErr = ex.Wait()
	}()
	wg.Wait()

	assert.Error(t, shortErr)
	assert.NoError(t, longErr)
}

func TestMaybeCompressRespectsThreshold(t *testing.T) {
	cfg := cmn.DefaultConfig()
	cfg.CompressThreshold = 16

	small := []byte{1, 2, 3}
	out, compressed := MaybeCompress(small, cfg)
	assert.False(t, compressed)
	assert.Equal(t, small, out)

	big := make([]byte, 64)
	out, compressed = MaybeCompress(big, cfg)
	require.True(t, compressed)
	back, err := Decompress(out)
	require.NoError(t, err)
	assert.Equal(t, big, back)
}
