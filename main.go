package main

import (
	"github.com/biosecret/go-tasks/app"
	_ "github.com/biosecret/go-tasks/docs"
)

// @title                       go-tasks API
// @version                     1.0
// @description                 Personal task manager: accounts and per-user task CRUD.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	// setup and run app
	err := app.SetupAndRunApp()
	if err != nil {
		panic(err)
	}
}
