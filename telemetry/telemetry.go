/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package telemetry

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/golang/glog"
)

// MetricsDumper periodically writes the completed intervals of an InmemSink
// to an io.Writer, and everything collected so far when stopped.
type MetricsDumper struct {
	inm      *metrics.InmemSink
	w        io.Writer
	stopCh   chan struct{}
	ticker   *time.Ticker
	done     sync.WaitGroup
	stopOnce sync.Once
}

func NewMetricsDumper(sink *metrics.InmemSink, period time.Duration) *MetricsDumper {
	return NewMetricsDumperTo(sink, period, os.Stderr)
}

func NewMetricsDumperTo(sink *metrics.InmemSink, period time.Duration, w io.Writer) *MetricsDumper {
	obj := &MetricsDumper{
		inm:    sink,
		w:      w,
		stopCh: make(chan struct{}),
		ticker: time.NewTicker(period),
	}

	obj.done.Add(1)
	go obj.run()

	return obj
}

func (i *MetricsDumper) run() {
	defer i.done.Done()
	for {
		select {
		case <-i.ticker.C:
			i.dumpStats(false)
		case <-i.stopCh:
			return
		}
	}
}

// Stop halts the periodic dump and flushes once more, including the interval
// still being aggregated. It is safe to call more than once.
func (i *MetricsDumper) Stop() {
	i.stopOnce.Do(func() {
		close(i.stopCh)
		i.ticker.Stop()
		i.done.Wait()
		i.dumpStats(true)
	})
}

func (i *MetricsDumper) dumpStats(includeCurrent bool) {
	buf := bytes.NewBuffer(nil)

	data := i.inm.Data()
	last := len(data) - 1
	if includeCurrent {
		last = len(data)
	}
	for j := 0; j < last; j++ {
		intv := data[j]
		intv.RLock()
		for _, val := range intv.Gauges {
			name := i.flattenLabels(val.Name, val.Labels)
			fmt.Fprintf(buf, "[%v][G] '%s': %0.3f\n", intv.Interval, name, val.Value)
		}
		for name, vals := range intv.Points {
			for _, val := range vals {
				fmt.Fprintf(buf, "[%v][P] '%s': %0.3f\n", intv.Interval, name, val)
			}
		}
		for _, agg := range intv.Counters {
			name := i.flattenLabels(agg.Name, agg.Labels)
			fmt.Fprintf(buf, "[%v][C] '%s': %s\n", intv.Interval, name, agg.AggregateSample)
		}
		for _, agg := range intv.Samples {
			name := i.flattenLabels(agg.Name, agg.Labels)
			fmt.Fprintf(buf, "[%v][S] '%s': %s\n", intv.Interval, name, agg.AggregateSample)
		}
		intv.RUnlock()
	}

	if buf.Len() == 0 {
		return
	}
	_, err := i.w.Write(buf.Bytes())
	if err != nil {
		glog.Warningf("Could not emit stats: %v", err)
	}
}

// Flattens the key for formatting along with its labels, removes spaces
func (i *MetricsDumper) flattenLabels(name string, labels []metrics.Label) string {
	buf := bytes.NewBufferString(name)
	replacer := strings.NewReplacer(" ", "_", ":", "_")

	for _, label := range labels {
		_, _ = replacer.WriteString(buf, ".")
		_, _ = replacer.WriteString(buf, label.Value)
	}

	return buf.String()
}
