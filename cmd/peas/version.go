package main

import (
	"fmt"

	"github.com/awehrman/peas/internal/common"
)

func runVersion() {
	fmt.Printf("peas version %s\n", common.GetFullVersion())
}
