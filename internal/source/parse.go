package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"

	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"golang.org/x/sync/errgroup"
)

// executorMarker precedes the "time in this state" suffix of the executor cell.
const executorMarker = "Neste estado há"

var (
	originPattern      = regexp.MustCompile(`\b(MP|MC|INST)\b`)
	statusSplitPattern = regexp.MustCompile(`\s+[A-Z]{2,4}\s*\(`)
	openedPattern      = regexp.MustCompile(`Aberta em\s+(\d{1,2}/\d{1,2}/\d{4})`)
	daysOpenPattern    = regexp.MustCompile(`\((\d+)\s+dias\)`)
	statusPatterns     = compileStatusPatterns()
)

func compileStatusPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(domain.KnownStatuses))
	for i, s := range domain.KnownStatuses {
		out[i] = regexp.MustCompile(`\b` + string(s) + `\b`)
	}
	return out
}

var errNoOrderNumber = errors.New("row has no order number")

// ParseRow turns a raw row into the scraped fields of an order.
// Derived fields (days in status, status change date) are left zero.
func ParseRow(raw RawRow) (domain.ServiceOrder, error) {
	number := strings.TrimSpace(raw.OrderNumber)
	if number == "" {
		return domain.ServiceOrder{}, errNoOrderNumber
	}

	order := domain.ServiceOrder{
		OrderNumber:  number,
		SourceTag:    parseOrigin(raw),
		IsCritical:   raw.CriticalMarker,
		ExecutorName: parseExecutor(raw.ExecutorText),
	}

	text := normalizeSpace(raw.EquipmentText)
	code, rest, _ := strings.Cut(text, " - ")
	order.EquipmentCode = strings.TrimSpace(code)

	// The description runs until the status code that opens a parenthesis.
	statusPart := rest
	if loc := statusSplitPattern.FindStringIndex(rest); loc != nil {
		order.EquipmentDescription = strings.TrimSpace(rest[:loc[0]])
		statusPart = rest[loc[0]:]
	} else {
		order.EquipmentDescription = strings.TrimSpace(rest)
	}
	order.Status = parseStatus(statusPart)
	if order.Status == "" {
		order.Status = parseStatus(text)
	}

	if m := openedPattern.FindStringSubmatch(text); m != nil {
		opened, err := domain.ParseDayFirst(m[1])
		if err != nil {
			return domain.ServiceOrder{}, fmt.Errorf("order %s: opened date %q: %w", number, m[1], err)
		}
		order.OpenedAt = opened
	}
	if m := daysOpenPattern.FindStringSubmatch(text); m != nil {
		order.DaysOpen, _ = strconv.Atoi(m[1])
	}

	return order, nil
}

func parseOrigin(raw RawRow) string {
	if m := originPattern.FindString(raw.OriginText); m != "" {
		return m
	}
	if m := originPattern.FindString(raw.RowText); m != "" {
		return m
	}
	return strings.TrimSpace(raw.OriginText)
}

func parseStatus(text string) domain.Status {
	for i, p := range statusPatterns {
		if p.MatchString(text) {
			return domain.KnownStatuses[i]
		}
	}
	return ""
}

func parseExecutor(text string) string {
	name, _, _ := strings.Cut(normalizeSpace(text), executorMarker)
	return strings.TrimSpace(name)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseRows parses every row with at most workers rows in flight.
// Rows that fail to parse are skipped. Output keeps page order.
func ParseRows(ctx context.Context, rows iter.Seq[RawRow], workers int) []domain.ServiceOrder {
	if workers <= 0 {
		workers = 1
	}

	var collected []RawRow
	for r := range rows {
		collected = append(collected, r)
	}

	parsed := make([]*domain.ServiceOrder, len(collected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, raw := range collected {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			order, err := ParseRow(raw)
			if err != nil {
				logger.CtxDebug(ctx, "skipping row %d: %v", raw.Index, err)
				return nil
			}
			parsed[i] = &order
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.ServiceOrder, 0, len(parsed))
	for _, p := range parsed {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
