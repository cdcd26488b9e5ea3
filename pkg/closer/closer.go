// Package closer останавливает компоненты воркера в обратном порядке регистрации:
// сначала источники сообщений, затем DLQ и в последнюю очередь соединение с БД.
package closer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/image-metadata/pkg/logger"
)

const (
	// successIdx - индекс, который возвращается в случае успешного закрытия всех ресурсов
	successIdx = -1

	defaultForcedTimeout = 2 * time.Second
)

// Func — сигнатура функции закрытия ресурса.
type Func func(ctx context.Context) error

type namedFunc struct {
	name string
	f    Func
}

// Closer обеспечивает потокобезопасное закрытие ресурсов.
type Closer struct {
	funcs         []namedFunc
	mu            sync.Mutex
	once          sync.Once
	forcedTimeout time.Duration
	logger        logger.Logger
}

// NewCloser создает новый экземпляр Closer.
// forcedTimeout — время, отводимое на принудительное закрытие оставшихся ресурсов,
// если контекст Close истёк раньше.
func NewCloser(forcedTimeout time.Duration, log logger.Logger) *Closer {
	if forcedTimeout <= 0 {
		forcedTimeout = defaultForcedTimeout
	}
	if log == nil {
		log = logger.Nop{}
	}

	return &Closer{
		forcedTimeout: forcedTimeout,
		logger:        log,
	}
}

// Add регистрирует ресурс; name попадает в логи и текст ошибки.
func (c *Closer) Add(name string, f Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, namedFunc{name: name, f: f})
}

// Close последовательно закрывает ресурсы (LIFO). Повторные вызовы ничего не делают.
// Если контекст отменяется до завершения, оставшиеся ресурсы закрываются параллельно
// с собственным таймаутом.
func (c *Closer) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		funcs := c.funcs
		c.mu.Unlock()

		stopIdx, errs := c.gracefulClose(ctx, funcs)
		if stopIdx == successIdx {
			if len(errs) > 0 {
				err = fmt.Errorf("shutdown finished with error(s):\n%s", strings.Join(errs, "\n"))
			}

			return
		}

		c.logger.Warnf("Shutdown deadline exceeded, forcing %d remaining resources", stopIdx+1)
		errs = append(errs, c.forcedClose(funcs[:stopIdx+1])...)

		err = fmt.Errorf(
			"shutdown interrupted after %d/%d funcs:\n%s",
			len(funcs)-1-stopIdx,
			len(funcs),
			strings.Join(errs, "\n"),
		)
	})

	return err
}

// gracefulClose возвращает индекс ресурса, на котором истёк ctx, либо successIdx.
func (c *Closer) gracefulClose(ctx context.Context, funcs []namedFunc) (int, []string) {
	var errs []string
	for i := len(funcs) - 1; i >= 0; i-- {
		var (
			nf   = funcs[i]
			done = make(chan error, 1)
		)

		go func() {
			done <- nf.f(ctx)
		}()

		select {
		case err := <-done:
			if err != nil {
				c.logger.Errorf(err, "Failed to close %s", nf.name)
				errs = append(errs, fmt.Sprintf("[!] %s: %v", nf.name, err))
				continue
			}
			c.logger.Debugf("Closed %s", nf.name)
		case <-ctx.Done():
			return i, errs
		}
	}

	return successIdx, errs
}

func (c *Closer) forcedClose(funcs []namedFunc) []string {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []string
	)

	ctx, cancel := context.WithTimeout(context.Background(), c.forcedTimeout)
	defer cancel()

	for _, nf := range funcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := nf.f(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("[FORCED] %s: %v", nf.name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return errs
}
