package main

import (
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/gophtalk/internal/keytool"
)

func main() {

	if err := keytool.Run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, keytool.ErrUsage) {
			log.Printf("%v", err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}

}
