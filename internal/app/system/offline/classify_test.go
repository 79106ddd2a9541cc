package offline_test

import (
	"testing"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		dest string
		want offline.Class
	}{
		{"http://farma.test/", "", offline.ClassStatic},
		{"http://farma.test/index.html", "", offline.ClassStatic},
		{"http://farma.test/manifest.json", "", offline.ClassStatic},
		{"http://farma.test/responsive.css", "", offline.ClassStatic},
		{"https://fonts.googleapis.com/css2?family=Roboto", "", offline.ClassStatic},
		{"https://fonts.gstatic.com/s/roboto/v30/abc.woff2", "", offline.ClassStatic},
		{"http://farma.test/js/i18n.js", "", offline.ClassScript},
		{"https://cdn.jsdelivr.net/npm/typed.js@2.0.12", "", offline.ClassScript},
		{"http://farma.test/lab-balance-capsules.jpg", "", offline.ClassImage},
		{"http://farma.test/favicon.ico", "", offline.ClassImage},
		{"http://farma.test/api/medicamentos", "", offline.ClassAPI},
		{"https://www.google-analytics.com/analytics.js", "script", offline.ClassAPI},
		{"https://www.googletagmanager.com/gtag/js?id=G-1", "", offline.ClassAPI},
		{"http://farma.test/sobre", "document", offline.ClassStatic},
		{"http://farma.test/photo", "image", offline.ClassImage},
		{"http://farma.test/sobre", "", offline.ClassOther},
	}
	for _, tt := range tests {
		got := offline.Classify(offline.Request{URL: tt.url, Destination: tt.dest})
		if got != tt.want {
			t.Errorf("Classify(%q, %q): got %q, want %q", tt.url, tt.dest, got, tt.want)
		}
	}
}

func TestRouteFor(t *testing.T) {
	tests := []struct {
		class    offline.Class
		strategy offline.Strategy
		part     string
	}{
		{offline.ClassStatic, offline.StrategyCacheFirst, offline.PartitionStatic},
		{offline.ClassScript, offline.StrategyCacheFirst, offline.PartitionDynamic},
		{offline.ClassImage, offline.StrategyImage, offline.PartitionImages},
		{offline.ClassAPI, offline.StrategyNetworkFirst, offline.PartitionDynamic},
		{offline.ClassOther, offline.StrategyNetworkFirst, offline.PartitionDynamic},
	}
	for _, tt := range tests {
		r := offline.RouteFor(tt.class)
		if r.Strategy != tt.strategy || r.Partition != tt.part {
			t.Errorf("RouteFor(%q): got %+v, want %s/%s", tt.class, r, tt.strategy, tt.part)
		}
	}
}
