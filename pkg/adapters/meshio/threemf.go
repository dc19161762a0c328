package meshio

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strconv"

	"github.com/aretw0/cadloop/pkg/domain"
)

const (
	contentTypes = `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="model" ContentType="application/vnd.ms-package.3dmanufacturing-3dmodel+xml"/>
</Types>
`
	relationships = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Target="/3D/3dmodel.model" Id="rel0" Type="http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"/>
</Relationships>
`
	modelPath = "3D/3dmodel.model"
	coreNS    = "http://schemas.microsoft.com/3dmanufacturing/core/2015/02"
)

type model3MF struct {
	XMLName   xml.Name    `xml:"model"`
	XMLNS     string      `xml:"xmlns,attr"`
	Unit      string      `xml:"unit,attr"`
	Resources resources3M `xml:"resources"`
	Build     build3MF    `xml:"build"`
}

type resources3M struct {
	Objects []object3MF `xml:"object"`
}

type object3MF struct {
	ID   int     `xml:"id,attr"`
	Type string  `xml:"type,attr"`
	Mesh mesh3MF `xml:"mesh"`
}

type mesh3MF struct {
	Vertices  []vertex3MF   `xml:"vertices>vertex"`
	Triangles []triangle3MF `xml:"triangles>triangle"`
}

type vertex3MF struct {
	X string `xml:"x,attr"`
	Y string `xml:"y,attr"`
	Z string `xml:"z,attr"`
}

type triangle3MF struct {
	V1 int `xml:"v1,attr"`
	V2 int `xml:"v2,attr"`
	V3 int `xml:"v3,attr"`
}

type build3MF struct {
	Items []item3MF `xml:"item"`
}

type item3MF struct {
	ObjectID int `xml:"objectid,attr"`
}

func coord(v float64) string { return strconv.FormatFloat(v, 'g', 9, 64) }

// write3MF writes a single-object 3MF package in millimetres.
func write3MF(w io.Writer, mesh *domain.Mesh) error {
	doc := model3MF{
		XMLNS: coreNS,
		Unit:  "millimeter",
		Build: build3MF{Items: []item3MF{{ObjectID: 1}}},
	}
	obj := object3MF{ID: 1, Type: "model"}
	obj.Mesh.Vertices = make([]vertex3MF, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		obj.Mesh.Vertices[i] = vertex3MF{X: coord(v.X), Y: coord(v.Y), Z: coord(v.Z)}
	}
	obj.Mesh.Triangles = make([]triangle3MF, len(mesh.Triangles))
	for i, t := range mesh.Triangles {
		obj.Mesh.Triangles[i] = triangle3MF{V1: t[0], V2: t[1], V3: t[2]}
	}
	doc.Resources.Objects = []object3MF{obj}

	zw := zip.NewWriter(w)
	for _, f := range []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypes},
		{"_rels/.rels", relationships},
	} {
		fw, err := zw.Create(f.name)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(fw, f.body); err != nil {
			return err
		}
	}
	fw, err := zw.Create(modelPath)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(fw, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(fw)
	enc.Indent("", " ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return zw.Close()
}
