package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/client"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestSplitTerms(t *testing.T) {
	assert.Equal(t, []string{"cat", "dog"}, splitTerms(" cat, ,dog,"))
	assert.Empty(t, splitTerms(""))
}

func TestReport(t *testing.T) {
	stats := NewStats()
	stats.RecordRequest(time.Millisecond, &client.Result{Count: 2}, nil)
	stats.RecordRequest(2*time.Millisecond, &client.Result{Count: 0}, nil)
	stats.RecordRequest(0, nil, fmt.Errorf("%w: Invalid query", client.ErrServer))
	stats.RecordRequest(0, nil, errors.New("connection refused"))

	var buf bytes.Buffer
	assert.True(t, printReport(&buf, stats, time.Second))
	out := buf.String()
	assert.Contains(t, out, "Total Requests:  4")
	assert.Contains(t, out, "Errors:          2 (server-reported 1)")
	assert.Contains(t, out, "Zero Results:    1")
	assert.Contains(t, out, "P50:")
}

func TestReportAllFailed(t *testing.T) {
	stats := NewStats()
	stats.RecordRequest(0, nil, errors.New("connection refused"))
	var buf bytes.Buffer
	assert.False(t, printReport(&buf, stats, time.Second))
	assert.Contains(t, buf.String(), "No requests completed")
}
