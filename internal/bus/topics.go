package bus

import "fmt"

// ControlTopic carries lifecycle commands echoed to dashboards.
func ControlTopic(scenario string) string {
	return fmt.Sprintf("/exercise/%s/control", scenario)
}

// TimerTopic carries periodic timer ticks.
func TimerTopic(scenario string) string {
	return fmt.Sprintf("/exercise/%s/timer", scenario)
}

// FeedTopic carries inject deliveries for one team.
func FeedTopic(scenario, team string) string {
	return fmt.Sprintf("/exercise/%s/team/%s/feed", scenario, team)
}
