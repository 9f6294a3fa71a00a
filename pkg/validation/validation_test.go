package validation

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type sample struct {
	Name  string `yaml:"name" validate:"required"`
	Count int    `yaml:"count" validate:"gte=1"`
}

func TestValidator(t *testing.T) {
	Convey("Given a validator using yaml names", t, func() {
		v := New("yaml")

		Convey("A valid struct passes", func() {
			So(v.Struct(sample{Name: "x", Count: 1}), ShouldBeNil)
		})

		Convey("Failures name the yaml field", func() {
			err := v.Struct(sample{Count: 0})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "sample.name")
			So(err.Error(), ShouldContainSubstring, "sample.count")
		})
	})
}
