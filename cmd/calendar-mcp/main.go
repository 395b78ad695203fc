// calendar-mcp exposes Google Calendar operations as MCP tools: event
// listing, event creation, free/busy queries, and first-fit free-slot
// search over the calendar's busy periods.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/gofer/internal/gcal"
	"github.com/vthunder/gofer/internal/googleauth"
	"github.com/vthunder/gofer/internal/schedule"
)

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[calendar-mcp] ")

	// Load .env file if present (don't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	statePath := os.Getenv("STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}
	calendarID := os.Getenv("GOOGLE_CALENDAR_ID")
	if calendarID == "" {
		calendarID = "primary"
	}

	store, err := googleauth.OpenStore(filepath.Join(statePath, "tokens.db"), os.Getenv("TOKEN_ENCRYPTION_KEY"))
	if err != nil {
		log.Fatalf("Failed to open token store: %v", err)
	}
	defer store.Close()

	cfg := googleauth.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		Scopes:       googleauth.DefaultScopes,
	}
	client := gcal.NewClient(googleauth.NewTokenSource(cfg, store, "google"), calendarID)

	log.Printf("Serving calendar %s", calendarID)

	s := server.NewMCPServer(
		"calendar-mcp",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(eventsListTool(), handleEventsList(client))
	s.AddTool(eventCreateTool(), handleEventCreate(client))
	s.AddTool(freeBusyTool(), handleFreeBusy(client))
	s.AddTool(findSlotTool(), handleFindSlot(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func eventsListTool() mcp.Tool {
	return mcp.NewTool("calendar_events_list",
		mcp.WithDescription("List calendar events in a time range, ordered by start time, recurring events expanded. Defaults to the next 7 days."),
		mcp.WithString("time_min",
			mcp.Description("Range start, RFC 3339 (default: now)"),
		),
		mcp.WithString("time_max",
			mcp.Description("Range end, RFC 3339 (default: time_min + 7 days)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum events to return (default 25)"),
		),
		mcp.WithString("query",
			mcp.Description("Free-text filter on event title, description, and attendees"),
		),
	)
}

func handleEventsList(client *gcal.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)

		timeMin := time.Now()
		if s, _ := args["time_min"].(string); s != "" {
			t, err := parseTimestamp(s)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			timeMin = t
		}

		timeMax := timeMin.Add(7 * 24 * time.Hour)
		if s, _ := args["time_max"].(string); s != "" {
			t, err := parseTimestamp(s)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			timeMax = t
		}

		maxResults := 25
		if n, ok := args["max_results"].(float64); ok && n > 0 {
			maxResults = int(n)
		}
		query, _ := args["query"].(string)

		events, err := client.ListEvents(ctx, gcal.ListEventsParams{
			TimeMin:    timeMin,
			TimeMax:    timeMax,
			MaxResults: maxResults,
			Query:      query,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list events: %v", err)), nil
		}

		if len(events) == 0 {
			return mcp.NewToolResultText("No events in this range."), nil
		}

		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal events: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func eventCreateTool() mcp.Tool {
	return mcp.NewTool("calendar_event_create",
		mcp.WithDescription("Create a calendar event. Times are RFC 3339; for all-day events pass dates (2006-01-02) and set all_day."),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Event start, RFC 3339 (or date for all-day)"),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("Event end, RFC 3339 (or date for all-day, exclusive)"),
		),
		mcp.WithString("description",
			mcp.Description("Event body text"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated attendee email addresses"),
		),
		mcp.WithBoolean("all_day",
			mcp.Description("Treat start/end as whole dates. Default: false"),
		),
	)
}

func handleEventCreate(client *gcal.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		summary, _ := args["summary"].(string)
		startStr, _ := args["start"].(string)
		endStr, _ := args["end"].(string)
		allDay, _ := args["all_day"].(bool)

		if summary == "" {
			return mcp.NewToolResultError("summary is required"), nil
		}
		if startStr == "" || endStr == "" {
			return mcp.NewToolResultError("start and end are required"), nil
		}

		start, err := parseEventTime(startStr, allDay)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		end, err := parseEventTime(endStr, allDay)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		event, err := client.CreateEvent(ctx, gcal.CreateEventParams{
			Summary:     summary,
			Description: stringArg(args, "description"),
			Location:    stringArg(args, "location"),
			Start:       start,
			End:         end,
			AllDay:      allDay,
			Attendees:   splitAddresses(stringArg(args, "attendees")),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create event: %v", err)), nil
		}

		output := fmt.Sprintf("Created event '%s'\n\nEvent ID: %s\nStart: %s\nEnd: %s",
			event.Summary, event.ID,
			event.Start.Format(time.RFC3339), event.End.Format(time.RFC3339))
		if event.HtmlLink != "" {
			output += "\nLink: " + event.HtmlLink
		}
		return mcp.NewToolResultText(output), nil
	}
}

func freeBusyTool() mcp.Tool {
	return mcp.NewTool("calendar_freebusy",
		mcp.WithDescription("Return the calendar's busy periods in a time range, ordered by start."),
		mcp.WithString("time_min",
			mcp.Required(),
			mcp.Description("Range start, RFC 3339"),
		),
		mcp.WithString("time_max",
			mcp.Required(),
			mcp.Description("Range end, RFC 3339"),
		),
	)
}

func handleFreeBusy(client *gcal.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)

		timeMin, err := requiredTimestamp(args, "time_min")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		timeMax, err := requiredTimestamp(args, "time_max")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		busy, err := client.FreeBusy(ctx, gcal.FreeBusyParams{TimeMin: timeMin, TimeMax: timeMax})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to query free/busy: %v", err)), nil
		}

		data, err := json.MarshalIndent(map[string]any{"busy": busy}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal busy periods: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func findSlotTool() mcp.Tool {
	return mcp.NewTool("calendar_find_slot",
		mcp.WithDescription("Find the earliest free slot of a requested duration within a search window, using the calendar's free/busy data. First-fit: the earliest sufficient gap wins even when a later gap fits tighter. slotStart and slotEnd are null when no gap is large enough."),
		mcp.WithString("window_start",
			mcp.Required(),
			mcp.Description("Search window start, RFC 3339"),
		),
		mcp.WithString("window_end",
			mcp.Required(),
			mcp.Description("Search window end, RFC 3339"),
		),
		mcp.WithNumber("duration_minutes",
			mcp.Required(),
			mcp.Description("Required slot length in whole minutes (positive)"),
		),
		mcp.WithString("time_zone",
			mcp.Description("IANA time zone echoed back in the result; not used in the search"),
		),
	)
}

func handleFindSlot(client *gcal.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)

		windowStart, err := requiredTimestamp(args, "window_start")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		windowEnd, err := requiredTimestamp(args, "window_end")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		minutes, ok := args["duration_minutes"].(float64)
		if !ok {
			return mcp.NewToolResultError("duration_minutes is required"), nil
		}
		if minutes <= 0 || minutes != math.Trunc(minutes) {
			return mcp.NewToolResultError("duration_minutes must be a positive whole number"), nil
		}
		duration := time.Duration(minutes) * time.Minute
		timeZone, _ := args["time_zone"].(string)

		// An inverted or empty window cannot hold a slot; skip the
		// free/busy call and report not found.
		if !windowEnd.After(windowStart) {
			return slotResult(schedule.Slot{}, false, timeZone)
		}

		busy, err := client.FreeBusy(ctx, gcal.FreeBusyParams{TimeMin: windowStart, TimeMax: windowEnd})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to query free/busy: %v", err)), nil
		}

		intervals := make([]schedule.Interval, len(busy))
		for i, b := range busy {
			intervals[i] = schedule.Interval{Start: b.Start, End: b.End}
		}

		slot, found := schedule.FindFreeSlot(intervals, schedule.Window{Start: windowStart, End: windowEnd}, duration)
		if found {
			log.Printf("find_slot: %d min slot at %s", int(minutes), slot.Start.Format(time.RFC3339))
		} else {
			log.Printf("find_slot: no %d min slot in window", int(minutes))
		}
		return slotResult(slot, found, timeZone)
	}
}

func slotResult(slot schedule.Slot, found bool, timeZone string) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(schedule.ResultFor(slot, found, timeZone), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC 3339, e.g. 2026-03-02T09:00:00Z)", s)
	}
	return t, nil
}

func requiredTimestamp(args map[string]any, key string) (time.Time, error) {
	s, _ := args[key].(string)
	if s == "" {
		return time.Time{}, fmt.Errorf("%s is required", key)
	}
	return parseTimestamp(s)
}

// parseEventTime accepts a bare date for all-day events.
func parseEventTime(s string, allDay bool) (time.Time, error) {
	if allDay {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, nil
		}
	}
	return parseTimestamp(s)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func splitAddresses(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
