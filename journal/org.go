package journal

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
)

var runOrgFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "(n/a)"
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var runOrgTemplate = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// WriteRunOrg renders a run and its trades as an Org-mode entry.
func WriteRunOrg(w io.Writer, r RunRecord, trades []TradeRecord) error {
	if err := runOrgTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render run %s: %w", r.RunID, err)
	}
	if len(trades) == 0 {
		return nil
	}
	_, err := io.WriteString(w, "\n"+FormatTradesOrg(trades)+"\n")
	return err
}

const RunOrgTemplate = `* BACKTEST: CVD breakout {{if .Symbol}}{{.Symbol}}{{else}}(symbol?){{end}}
:PROPERTIES:
:RUN_ID:      {{.RunID}}
:STRATEGY:    cvd_trendline_breakout
:SOURCE:      {{if .Source}}{{.Source}}{{else}}(source?){{end}}
:SYMBOL:      {{.Symbol}}
:START:       {{date .Start}}
:END_TIME:    {{date .End}}
:BARS:        {{.Bars}}
:STOP:        {{.StopReason}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" .WinRate}}
:SHARPE:      {{printf "%.2f" .Sharpe}}
:NET_PNL:     {{.NetPnL.StringFixed 2}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net P&L ($):      *{{.NetPnL.StringFixed 2}}*
- Total (points):   *{{printf "%.2f" .TotalProfit}}*
- Average (points): *{{printf "%.2f" .AverageProfit}}*
- Win Rate:         *{{printf "%.2f" .WinRate}}%*
- Sharpe:           *{{printf "%.2f" .Sharpe}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
{{- if .Config }}

** Configuration
#+begin_src yaml
{{printf "%s" .Config}}#+end_src
{{- end }}
`

// FormatTradeOrg renders a TradeRecord as an Org-mode block. Structured
// facts live in the PROPERTIES drawer; the Review heading is left for notes.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** Trade: %s %s (%s)", t.Direction, t.Reason, shortID(t.TradeID))
	open := t.OpenTime.UTC().Format(time.RFC3339)
	close := t.CloseTime.UTC().Format(time.RFC3339)

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.TradeID))
	b.WriteString(fmt.Sprintf(":RUN_ID: %s\n", t.RunID))
	b.WriteString(fmt.Sprintf(":DIRECTION: %s\n", t.Direction))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.2f\n", t.EntryPrice))
	b.WriteString(fmt.Sprintf(":EXIT_PRICE: %.2f\n", t.ExitPrice))
	b.WriteString(fmt.Sprintf(":OPEN_TIME: %s\n", open))
	b.WriteString(fmt.Sprintf(":CLOSE_TIME: %s\n", close))
	b.WriteString(fmt.Sprintf(":PROFIT: %.2f\n", t.Profit))
	b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// shortID keeps the random tail of a ULID; its first characters only
// encode the timestamp.
func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
