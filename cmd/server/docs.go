package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           Agroforward Contract Engine API
// @version         0.1.0
// @description     Forward-contract matching, anchoring and artifact publication.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
