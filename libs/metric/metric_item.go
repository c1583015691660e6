package metric

import (
	"fmt"

	gometrics "github.com/rcrowley/go-metrics"
)

// MetricItem - 一个独立的metric模块对应一个MetricItem
type MetricItem interface {
	JSONString() string
}

// EpochCounter 记录提交路径上的事件次数 - DS block提交、final block提交、view change
type EpochCounter struct {
	name    string
	counter gometrics.Counter
}

func NewEpochCounter(name string) *EpochCounter {
	return &EpochCounter{
		name:    name,
		counter: gometrics.NewCounter(),
	}
}

func (ec *EpochCounter) Inc() {
	ec.counter.Inc(1)
}

func (ec *EpochCounter) Count() int64 {
	return ec.counter.Count()
}

func (ec *EpochCounter) JSONString() string {
	return fmt.Sprintf(`{"name":%q,"count":%d}`, ec.name, ec.counter.Count())
}
