// Package calendar provides the Google Calendar capability backend: listing
// upcoming events on the primary calendar and creating new events.
//
// Example usage:
//
//	client, err := calendar.NewClient(ctx, httpClient)
//	if err != nil {
//	    return err
//	}
//	events, err := client.ListEvents(ctx, 7)
package calendar
