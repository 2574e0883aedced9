package pipeline

import (
	"context"
	"errors"
	"math"
)

var nan = math.NaN()

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
