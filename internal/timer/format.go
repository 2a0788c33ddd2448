package timer

import "fmt"

// FormatElapsed renders seconds as HH:MM:SS. Hours are not wrapped at 24.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
