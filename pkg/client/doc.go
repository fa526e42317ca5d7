// Package pestsearch is a Go client for the pestsearch HTTP API.
//
// The client wraps the query endpoint used by dialogue layers:
//
//	c, err := pestsearch.New("http://localhost:8080",
//		pestsearch.WithAPIKey(os.Getenv("PESTSEARCH_API_KEY")))
//	if err != nil {
//		log.Fatal(err)
//	}
//	resp, err := c.Query(ctx, pestsearch.QueryRequest{
//		ProblemText: "aphids on my rose bushes",
//	})
//
// All methods take a context and honor its deadline.
package pestsearch
