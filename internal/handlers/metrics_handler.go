package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"hotelops/internal/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsHandler renders automation engine counters in Prometheus text format.
type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// GetMetrics 输出引擎计数指标
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	cycles, byStatus := metrics.EngineSnapshot()

	var b strings.Builder
	b.WriteString("# HELP hotelops_automation_cycles_total Completed automation cycles.\n")
	b.WriteString("# TYPE hotelops_automation_cycles_total counter\n")
	fmt.Fprintf(&b, "hotelops_automation_cycles_total %d\n", cycles)

	b.WriteString("# HELP hotelops_automation_runs_total Automation runs by terminal status.\n")
	b.WriteString("# TYPE hotelops_automation_runs_total counter\n")
	statuses := make([]string, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "hotelops_automation_runs_total{status=%q} %d\n", s, byStatus[s])
	}

	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}
