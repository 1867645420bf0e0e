package main

import (
	"fmt"

	"github.com/webitel/post-feed-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
