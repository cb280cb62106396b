package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/service"
)

func formatStatus(st service.Status) string {
	var b strings.Builder
	b.WriteString("ℹ️ Monitor status\n\n")

	switch {
	case st.Running && st.Paused:
		b.WriteString("State: ⏸️ paused (outside operating window)\n")
	case st.Running:
		b.WriteString("State: ✅ running\n")
	default:
		b.WriteString("State: ⏹ stopped\n")
	}

	if st.LastHeartbeat.IsZero() {
		b.WriteString("Last heartbeat: never\n")
	} else {
		fmt.Fprintf(&b, "Last heartbeat: %s (%s ago)\n",
			st.LastHeartbeat.Format("15:04:05"), st.HeartbeatAge.Round(time.Second))
	}
	fmt.Fprintf(&b, "Cached orders: %d\n", st.CacheSize)
	fmt.Fprintf(&b, "Now: %s (%s)", st.Now.Format("02/01/2006 15:04:05"), st.Now.Location())
	if st.LastError != "" {
		fmt.Fprintf(&b, "\nLast error: %s", st.LastError)
	}
	return b.String()
}

func formatStats(s domain.MonitorStats) string {
	var b strings.Builder
	b.WriteString("📊 Statistics\n\n")
	fmt.Fprintf(&b, "Total orders: %d\n", s.Total)
	fmt.Fprintf(&b, "Active orders: %d\n", s.Active)
	fmt.Fprintf(&b, "Critical orders: %d\n", s.Critical)
	fmt.Fprintf(&b, "Average days open: %.1f\n", s.AverageDaysOpen)
	fmt.Fprintf(&b, "Cached orders: %d", s.CacheSize)
	if s.CyclesCompleted > 0 {
		fmt.Fprintf(&b, "\nCycles completed: %d\nLast cycle: %s (%d writes)",
			s.CyclesCompleted, s.LastCycleAt.Format("15:04:05"), s.LastCycleWrites)
	}
	return b.String()
}

func formatOrder(o *domain.ServiceOrder, src string) string {
	critical := "No"
	if o.IsCritical {
		critical = "🔴 Yes"
	}
	executor := o.ExecutorName
	if executor == "" {
		executor = "-"
	}
	origin := o.SourceTag
	if origin == "" {
		origin = "-"
	}
	where := "🗄️ database"
	if src == service.FoundInCache {
		where = "📦 cache"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Order %s\n\n", o.OrderNumber)
	fmt.Fprintf(&b, "Equipment: %s - %s\n", o.EquipmentCode, o.EquipmentDescription)
	fmt.Fprintf(&b, "Status: %s\n", o.Status)
	fmt.Fprintf(&b, "Critical: %s\n", critical)
	fmt.Fprintf(&b, "Executor: %s\n", executor)
	fmt.Fprintf(&b, "Days open: %d\n", o.DaysOpen)
	fmt.Fprintf(&b, "Origin: %s\n", origin)
	fmt.Fprintf(&b, "Found in: %s", where)
	return b.String()
}

func formatCleared(n int) string {
	return fmt.Sprintf("🧹 Cache cleared\n\nRecords removed: %d\n"+
		"The cache is rebuilt on the next monitor cycle.", n)
}
