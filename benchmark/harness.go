package benchmark

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	ExecutionTimeout = 5 * time.Minute
	StandardRuntime  = time.Minute
	MinimumRuntime   = 10 * time.Second
	MinIterations    = 100

	ten         = 10
	hundred     = ten * ten
	thousand    = ten * hundred
	tenThousand = ten * thousand
)

// TimerManager is a subset of the testing.B tool, used to manage benchmark
// timers. Cases call it to exclude their setup work from the measurement.
type TimerManager interface {
	ResetTimer()
	StartTimer()
	StopTimer()
}

type BenchCase func(context.Context, TimerManager, int) error
type BenchFunction func(*testing.B)

func WrapCase(bench BenchCase) BenchFunction {
	name := getName(bench)
	return func(b *testing.B) {
		ctx := context.Background()
		b.ResetTimer()
		err := bench(ctx, b, b.N)
		require.NoError(b, err, "case='%s'", name)
	}
}

func getAllCases() []*CaseDefinition {
	return []*CaseDefinition{
		{
			Bench:   CanaryIncCase,
			Count:   hundred,
			Size:    -1,
			Runtime: MinimumRuntime,
		},
		{
			Bench:   GlobalCanaryIncCase,
			Count:   hundred,
			Size:    -1,
			Runtime: MinimumRuntime,
		},
		{
			Bench:   BERControlEncoding,
			Count:   tenThousand,
			Size:    1070000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   BERControlDecoding,
			Count:   tenThousand,
			Size:    1070000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   BERMessageEncoding,
			Count:   tenThousand,
			Size:    2150000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   BERMessageDecoding,
			Count:   tenThousand,
			Size:    2150000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   BERJoinTreeDecoding,
			Count:   thousand,
			Size:    21300000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   JSONControlEncoding,
			Count:   tenThousand,
			Size:    1480000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   JSONControlDecoding,
			Count:   tenThousand,
			Size:    1480000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   JSONControlDecodingStrict,
			Count:   tenThousand,
			Size:    1480000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   JSONContainerWideDecoding,
			Count:   thousand,
			Size:    9200000,
			Runtime: StandardRuntime,
		},
		{
			Bench:   JSONContainerDeepDecoding,
			Count:   thousand,
			Size:    5100000,
			Runtime: StandardRuntime,
		},
	}
}
