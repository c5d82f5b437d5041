// Package crash recognizes boot and crash markers in raw console output
// and turns captured crash blocks into structured records.
package crash

import (
	"regexp"
	"strings"
)

// Marker signatures for the monitored target's console. The reset banner,
// boot banner, and dump terminator are anchored at the line start; the
// exception keywords match anywhere in a line.
var (
	reReset      = regexp.MustCompile(`(?i)^NOTICE:\s+CPU:\s+STM32MP257`)
	reBootDone   = regexp.MustCompile(`(?i)^## Starting application at 0x88000040`)
	reCrashStart = regexp.MustCompile(`(?i)Synchronous Abort|Undefined Instruction|Exception`)
	reCrashEnd   = regexp.MustCompile(`^Code: .* \(.*\)`)

	reELR     = regexp.MustCompile(`elr:\s*([0-9A-Fa-fx]+)`)
	reLR      = regexp.MustCompile(`lr\s*:\s*([0-9A-Fa-fx]+)`)
	reESR     = regexp.MustCompile(`esr\s*(0x[0-9A-Fa-f]+)`)
	reHexWord = regexp.MustCompile(`\b[0-9a-fA-F]{8}\b`)
)

// IsResetMarker reports whether line is the CPU reset banner that opens
// a new boot attempt.
func IsResetMarker(line string) bool {
	return reReset.MatchString(line)
}

// IsBootFinished reports whether line is the application-start banner.
func IsBootFinished(line string) bool {
	return reBootDone.MatchString(line)
}

// IsCrashStart reports whether line contains one of the exception
// keywords that open a crash dump.
func IsCrashStart(line string) bool {
	return reCrashStart.MatchString(line)
}

// IsCrashEnd reports whether line is the Code: terminator that closes
// a crash dump.
func IsCrashEnd(line string) bool {
	return reCrashEnd.MatchString(line)
}

// ExtractELR returns the first exception link register value found in
// lines, or nil if the dump does not contain one.
func ExtractELR(lines []string) *string {
	return firstCapture(reELR, lines)
}

// ExtractLR returns the first link register value found in lines, or nil.
func ExtractLR(lines []string) *string {
	return firstCapture(reLR, lines)
}

// ExtractESR returns the first exception syndrome register value found
// in lines, or nil.
func ExtractESR(lines []string) *string {
	return firstCapture(reESR, lines)
}

// ExtractCode scans lines for the first Code: line and splits its
// 8-hex-digit words into the instructions before the fault and the
// faulting instruction itself (the last word). It returns (nil, nil)
// when no Code: line exists or the line carries no hex words.
func ExtractCode(lines []string) (prev []string, faulting *string) {
	for _, line := range lines {
		if !strings.HasPrefix(line, "Code:") {
			continue
		}
		words := reHexWord.FindAllString(line, -1)
		if len(words) == 0 {
			return nil, nil
		}
		if len(words) > 1 {
			prev = words[:len(words)-1]
		}
		return prev, &words[len(words)-1]
	}
	return nil, nil
}

func firstCapture(re *regexp.Regexp, lines []string) *string {
	for _, line := range lines {
		if m := re.FindStringSubmatch(line); m != nil {
			return &m[1]
		}
	}
	return nil
}
