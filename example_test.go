package cadloop_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/cadloop"
	"github.com/aretw0/cadloop/pkg/domain"
)

// ExampleEngine builds a part in two edits and reads back its size.
func ExampleEngine() {
	eng, err := cadloop.New()
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	ctx := context.Background()
	res, err := eng.CreateModel(ctx, "bracket", "result = Box(60, 40, 30)")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("created:", res.Success)

	mod, err := eng.ModifyModel(ctx, "bracket", "result = result.Sub(Cylinder(8, 40))")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("modified:", mod.Success)

	m, err := eng.Measure("bracket")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%.0f x %.0f x %.0f mm, %d revisions\n", m.Width, m.Depth, m.Height, m.Revisions)

	_, err = eng.ModifyModel(ctx, "missing", "result = Box(1, 1, 1)")
	fmt.Println(domain.KindOf(err))
	// Output:
	// created: true
	// modified: true
	// 60 x 40 x 30 mm, 2 revisions
	// NotFound
}
