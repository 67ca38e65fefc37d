// Package signal parses free-text trade signals pasted into the chat.
//
// The accepted shape is:
//
//	LONG $APT
//	Entry 8.844
//	Stl 8.4
//	Tp 9 - 10 - 11
//
// An entry of 0 requests a market entry at the current price.
package signal

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bybot/core"
	"bybot/exchange"
)

// ErrNotASignal marks text that does not even look like a trade signal,
// as opposed to a malformed one
var ErrNotASignal = errors.New("not a trade signal")

// Signal is a parsed trade instruction
type Signal struct {
	Side        core.SideType
	Symbol      string
	Entry       float64 // zero means market entry
	StopLoss    float64
	TakeProfits []float64
}

// IsMarket reports whether the signal requests a market entry
func (s Signal) IsMarket() bool {
	return s.Entry == 0
}

// Direction returns the human direction of the signal
func (s Signal) Direction() string {
	if s.Side == core.SideTypeBuy {
		return "LONG"
	}
	return "SHORT"
}

var (
	headRe  = regexp.MustCompile(`(?i)^(long|short)\s+(\$?[a-z0-9]+)$`)
	entryRe = regexp.MustCompile(`(?i)^entry\s+([0-9.]+)$`)
	stopRe  = regexp.MustCompile(`(?i)^(?:stl|sl|stop)\s+([0-9.]+)$`)
	tpRe    = regexp.MustCompile(`(?i)^tp\s+(.+)$`)
)

// Parse parses a chat message into a signal. It returns ErrNotASignal
// when the first line is not a direction, so callers can treat such
// messages as ordinary chat.
func Parse(text string) (Signal, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) == 0 || !headRe.MatchString(lines[0]) {
		return Signal{}, ErrNotASignal
	}

	head := headRe.FindStringSubmatch(lines[0])

	signal := Signal{
		Symbol: exchange.NormalizeSymbol(head[2]),
	}
	if strings.EqualFold(head[1], "long") {
		signal.Side = core.SideTypeBuy
	} else {
		signal.Side = core.SideTypeSell
	}

	var haveEntry, haveStop, haveTp bool
	for _, line := range lines[1:] {
		switch {
		case entryRe.MatchString(line):
			value, err := parsePrice(entryRe.FindStringSubmatch(line)[1], line)
			if err != nil {
				return Signal{}, err
			}
			signal.Entry = value
			haveEntry = true

		case stopRe.MatchString(line):
			value, err := parsePrice(stopRe.FindStringSubmatch(line)[1], line)
			if err != nil {
				return Signal{}, err
			}
			signal.StopLoss = value
			haveStop = true

		case tpRe.MatchString(line):
			targets, err := parseTargets(tpRe.FindStringSubmatch(line)[1], line)
			if err != nil {
				return Signal{}, err
			}
			signal.TakeProfits = targets
			haveTp = true

		default:
			return Signal{}, fmt.Errorf("unrecognized signal line %q", line)
		}
	}

	if !haveEntry {
		return Signal{}, errors.New("signal is missing the Entry line")
	}
	if !haveStop {
		return Signal{}, errors.New("signal is missing the Stl line")
	}
	if !haveTp {
		return Signal{}, errors.New("signal is missing the Tp line")
	}

	return signal, signal.validate()
}

// validate enforces that the stop sits on the losing side of the entry
// and every target on the winning side. Market entries skip the checks
// against the entry price; the current price is not known yet.
func (s Signal) validate() error {
	if s.StopLoss <= 0 {
		return fmt.Errorf("invalid stop loss %v", s.StopLoss)
	}
	if len(s.TakeProfits) == 0 {
		return errors.New("signal has no take profit targets")
	}

	for _, tp := range s.TakeProfits {
		if tp <= 0 {
			return fmt.Errorf("invalid take profit %v", tp)
		}
		if s.Side == core.SideTypeBuy && tp <= s.StopLoss {
			return fmt.Errorf("take profit %v below stop loss %v on a LONG", tp, s.StopLoss)
		}
		if s.Side == core.SideTypeSell && tp >= s.StopLoss {
			return fmt.Errorf("take profit %v above stop loss %v on a SHORT", tp, s.StopLoss)
		}
	}

	if s.IsMarket() {
		return nil
	}

	if s.Side == core.SideTypeBuy {
		if s.StopLoss >= s.Entry {
			return fmt.Errorf("stop loss %v must be below entry %v on a LONG", s.StopLoss, s.Entry)
		}
		for _, tp := range s.TakeProfits {
			if tp <= s.Entry {
				return fmt.Errorf("take profit %v must be above entry %v on a LONG", tp, s.Entry)
			}
		}
	} else {
		if s.StopLoss <= s.Entry {
			return fmt.Errorf("stop loss %v must be above entry %v on a SHORT", s.StopLoss, s.Entry)
		}
		for _, tp := range s.TakeProfits {
			if tp >= s.Entry {
				return fmt.Errorf("take profit %v must be below entry %v on a SHORT", tp, s.Entry)
			}
		}
	}

	return nil
}

func parsePrice(raw, line string) (float64, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid price in signal line %q", line)
	}
	return value, nil
}

// parseTargets splits a take profit ladder like "9 - 10 - 11"
func parseTargets(raw, line string) ([]float64, error) {
	var targets []float64
	for _, part := range strings.Split(raw, "-") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		value, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid take profit in signal line %q", line)
		}
		targets = append(targets, value)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no take profit targets in signal line %q", line)
	}

	return targets, nil
}
