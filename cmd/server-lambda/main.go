package main

import (
	"context"
	"fmt"
	"os"

	"example/healing-api/app"
	"example/healing-api/app/config"
	"example/healing-api/app/logger"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start). Stale sessions are closed
// lazily on access; the sweeper only runs in the long-lived server.
func init() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	rt, err := app.Bootstrap(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to initialize", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	ginLambda = ginadapter.New(rt.Router)
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
