// Package jitter считает задержки повторов с экспоненциальным ростом и случайной добавкой,
// чтобы воркеры одной consumer group не били в БД и брокер синхронно.
package jitter

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultJitter — стандартный коэффициент джиттера (50%)
const DefaultJitter = 0.5

var (
	globalRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMutex  sync.Mutex
)

// Backoff — политика повторов: Base удваивается на каждой попытке до Max,
// сверху добавляется до Factor*delay случайной задержки.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64

	rng *rand.Rand // nil — общий генератор пакета
}

func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{Base: base, Max: max, Factor: DefaultJitter}
}

// WithRand возвращает копию политики с собственным генератором (для детерминированных тестов).
func (b Backoff) WithRand(rng *rand.Rand) Backoff {
	b.rng = rng
	return b
}

// Delay возвращает задержку перед попыткой attempt (нумерация с нуля).
// Результат лежит в [d, d*(1+Factor)], где d = min(Base*2^attempt, Max).
func (b Backoff) Delay(attempt int) time.Duration {
	d := Exponential(b.Base, b.Max, attempt)
	if b.rng != nil {
		return DurationWithSeed(d, b.Factor, b.rng)
	}

	return Duration(d, b.Factor)
}

// Exponential возвращает min(base*2^attempt, max) без джиттера.
// max меньше base не ограничивает рост ниже base.
func Exponential(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if max < base {
		max = base
	}

	backoff := base
	for i := 0; i < attempt; i++ {
		if backoff >= max/2 {
			return max
		}
		backoff *= 2
	}

	return backoff
}

// Duration возвращает продолжительность с применённым джиттером.
// Результат находится в диапазоне [d, d*(1+jitterFactor)].
func Duration(d time.Duration, jitterFactor float64) time.Duration {
	randMutex.Lock()
	defer randMutex.Unlock()

	return DurationWithSeed(d, jitterFactor, globalRand)
}

// DurationWithSeed возвращает продолжительность с джиттером, используя заданный генератор случайных чисел.
func DurationWithSeed(d time.Duration, jitterFactor float64, rng *rand.Rand) time.Duration {
	if d <= 0 || jitterFactor <= 0 {
		return d
	}

	return d + time.Duration(rng.Float64()*jitterFactor*float64(d))
}
