// Package snapmatch provides a Go client for the snapmatch image
// ingestion and title matching service.
//
//	client := snapmatch.New("http://localhost:8080",
//	    snapmatch.WithAPIKey("secret"),
//	)
//
//	res, _ := client.Ingest(ctx, []snapmatch.File{
//	    {Name: "bike.png", Data: raw},
//	})
//
//	matches, _ := client.Match(ctx, []string{"a red bicycle at sunset"})
package snapmatch
