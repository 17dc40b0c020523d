package common

import (
	"fmt"
	"strings"
	"time"

	"wallet-txengine-go/internal/engine"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

const confirmationTimeLayout = "2006-01-02 15:04 MST"

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintSeparatorNewline prints a separator with a newline before it
func PrintSeparatorNewline(char string, width int) {
	fmt.Println("\n" + strings.Repeat(char, width))
}

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// FormatConfirmation renders one review line as "Label: value".
func FormatConfirmation(c engine.Confirmation) string {
	return fmt.Sprintf("%-24s %s", c.Kind.String()+":", confirmationValue(c))
}

func confirmationValue(c engine.Confirmation) string {
	switch {
	case c.Amount != nil && c.Display != nil && c.Display.Currency.Code != c.Amount.Currency.Code:
		return fmt.Sprintf("%s (%s)", c.Amount, c.Display)
	case c.Amount != nil:
		return c.Amount.String()
	case c.Time != nil:
		return c.Time.UTC().Format(confirmationTimeLayout)
	case c.DepositTerms != nil:
		days := c.WithdrawalLockDays()
		if days == 0 {
			return "available immediately"
		}
		return fmt.Sprintf("withdrawals locked for %d day(s)", days)
	default:
		return c.Text
	}
}

// PrintConfirmations prints the review lines of pt in order.
func PrintConfirmations(title string, pt engine.PendingTransaction) {
	PrintHeader(title, DefaultWidth)
	for i, c := range pt.Confirmations {
		fmt.Println(BoxPrefix(i == len(pt.Confirmations)-1) + FormatConfirmation(c))
	}
	PrintSeparator("=", DefaultWidth)
}

// FormatResult describes a successful execution.
func FormatResult(r engine.Result) string {
	switch r.Kind {
	case engine.ResultHashed:
		return fmt.Sprintf("Broadcast %s, tx hash %s", r.Amount, r.TxHash)
	case engine.ResultUnhashed:
		return fmt.Sprintf("Submitted %s, reference %s", r.Amount, r.Reference)
	default:
		return fmt.Sprintf("Signed, signature %s", r.Signature)
	}
}

// FormatCountdown renders the time left until deadline, e.g. "1m05s".
func FormatCountdown(now, deadline time.Time) string {
	left := deadline.Sub(now).Round(time.Second)
	if left <= 0 {
		return "expired"
	}
	minutes := int(left / time.Minute)
	seconds := int((left % time.Minute) / time.Second)
	return fmt.Sprintf("%dm%02ds", minutes, seconds)
}
