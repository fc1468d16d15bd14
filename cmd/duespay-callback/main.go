// The duespay-callback function receives the payment provider's browser
// redirect and bounces it back into the portal's payment-status route with
// the reference and status preserved.
package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/duespay/portal/internal/callback"
	"github.com/duespay/portal/internal/config"
)

type handler struct {
	portalURL string
	logger    *log.Logger
}

func main() {
	cfg := config.Load()
	if cfg.PortalURL == "" {
		log.Fatal("DUESPAY_PORTAL_URL must be set")
	}

	h := handler{
		portalURL: cfg.PortalURL,
		logger:    log.New(os.Stdout, "duespay-callback ", log.LstdFlags),
	}
	lambda.Start(h.handle)
}

func (h handler) handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	query := url.Values{}
	for k, v := range req.QueryStringParameters {
		query.Set(k, v)
	}
	for k, vs := range req.MultiValueQueryStringParameters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	rd, err := callback.Parse(query)
	var location string
	if err != nil {
		// No reference means this attempt is unrecoverable; send the payer
		// back to the flow entry rather than a broken status page.
		h.logger.Printf("invalid callback (%v); params: %v", err, req.QueryStringParameters)
		location = callback.EntryURL(h.portalURL)
	} else {
		h.logger.Printf("callback for reference %s status %s", rd.ReferenceID, rd.Status)
		location = rd.StatusURL(h.portalURL)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location":      location,
			"Cache-Control": "no-store",
		},
	}, nil
}
