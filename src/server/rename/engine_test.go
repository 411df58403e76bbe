package rename

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"smali-lsp/src/server/index"
	"smali-lsp/src/smali"
)

const widgetSource = `.class public Lcom/app/Widget;
.super Ljava/lang/Object;

.field private count:I

.field public static final NAME:Ljava/lang/String; = "widget"

.method public constructor <init>()V
    .locals 0
    invoke-direct {p0}, Ljava/lang/Object;-><init>()V
    return-void
.end method

.method public getCount()I
    .locals 1
    iget v0, p0, Lcom/app/Widget;->count:I
    return v0
.end method

.method public getCount(I)I
    .locals 1
    iget v0, p0, Lcom/app/Widget;->count:I
    add-int v0, v0, p1
    return v0
.end method
`

const mainSource = `.class public Lcom/app/Main;
.super Ljava/lang/Object;

.annotation system Ldalvik/annotation/Signature;
    value = {
        "Lcom/app/Widget"
    }
.end annotation

.field private widget:Lcom/app/Widget;

.method public run()I
    .locals 2
    iget-object v0, p0, Lcom/app/Main;->widget:Lcom/app/Widget;
    invoke-virtual {v0}, Lcom/app/Widget;->getCount()I
    move-result v1
    return v1
.end method
`

var (
	widgetURI = uri.File("/ws/com/app/Widget.smali")
	mainURI   = uri.File("/ws/com/app/Main.smali")
)

func testEngine(t *testing.T) (*Engine, *index.DocumentIndex) {
	t.Helper()
	idx := index.NewDocumentIndex()
	_, err := idx.Open(widgetURI, widgetSource)
	require.NoError(t, err)
	_, err = idx.Open(mainURI, mainSource)
	require.NoError(t, err)
	idx.MarkReady()
	return NewEngine(idx), idx
}

// applyEditsToText splices a file's edits into its text, back to front so
// earlier offsets stay valid.
func applyEditsToText(t *testing.T, text string, edits []protocol.TextEdit) string {
	t.Helper()
	sorted := make([]protocol.TextEdit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Range.Start, sorted[j].Range.Start
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		return a.Character > b.Character
	})
	for _, edit := range sorted {
		start := smali.PositionToOffset(text, edit.Range.Start)
		end := smali.PositionToOffset(text, edit.Range.End)
		text = text[:start] + edit.NewText + text[end:]
	}
	return text
}

func pos(line, character uint32) protocol.Position {
	return protocol.Position{Line: line, Character: character}
}

func TestClassify(t *testing.T) {
	engine, _ := testEngine(t)

	tests := []struct {
		name string
		uri  uri.URI
		text string
		pos  protocol.Position
		kind Kind
	}{
		{"class descriptor", widgetURI, widgetSource, pos(0, 14), KindType},
		{"descriptor inside instruction", widgetURI, widgetSource, pos(15, 20), KindType},
		{"field declaration name", widgetURI, widgetSource, pos(3, 16), KindFieldDecl},
		{"method declaration name", widgetURI, widgetSource, pos(13, 17), KindMethodDecl},
		{"field reference name", widgetURI, widgetSource, pos(15, 36), KindFieldRef},
		{"method reference name", mainURI, mainSource, pos(14, 45), KindMethodRef},
		{"blank line", widgetURI, widgetSource, pos(2, 0), KindNone},
		{"directive keyword", widgetURI, widgetSource, pos(1, 2), KindNone},
		{"register operand", widgetURI, widgetSource, pos(16, 11), KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := engine.Classify(tt.uri, tt.text, tt.pos)
			if tt.kind == KindNone {
				assert.Nil(t, target)
				return
			}
			require.NotNil(t, target)
			assert.Equal(t, tt.kind, target.Kind)
		})
	}
}

func TestClassifyResolvesOwners(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(widgetURI, widgetSource, pos(3, 16))
	require.NotNil(t, target)
	assert.Equal(t, "Lcom/app/Widget;", target.Owner)
	require.NotNil(t, target.Field)
	assert.Equal(t, "count:I", target.Field.Identifier())

	target = engine.Classify(mainURI, mainSource, pos(14, 45))
	require.NotNil(t, target)
	assert.Equal(t, "Lcom/app/Widget;", target.Owner)
	require.NotNil(t, target.Method)
	assert.Equal(t, "getCount()I", target.Method.Identifier())
}

func TestPrepare(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(widgetURI, widgetSource, pos(0, 20))
	require.NotNil(t, target)

	rng, placeholder := engine.Prepare(target)
	assert.Equal(t, "Lcom/app/Widget;", placeholder)
	assert.Equal(t, pos(0, 14), rng.Start)
	assert.Equal(t, pos(0, 30), rng.End)
}

func TestApplyNilTarget(t *testing.T) {
	engine, _ := testEngine(t)

	batch, err := engine.Apply(context.Background(), nil, "anything")
	require.NoError(t, err)
	assert.True(t, batch.Empty())
}

func TestApplyTypeRename(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(widgetURI, widgetSource, pos(0, 14))
	require.NotNil(t, target)

	batch, err := engine.Apply(context.Background(), target, "Lcom/app/Gadget;")
	require.NoError(t, err)

	// Bare descriptors in both files plus the annotation literal in Main.
	require.Len(t, batch.Changes[protocol.DocumentURI(widgetURI)], 3)
	require.Len(t, batch.Changes[protocol.DocumentURI(mainURI)], 4)

	gotWidget := applyEditsToText(t, widgetSource, batch.Changes[protocol.DocumentURI(widgetURI)])
	gotMain := applyEditsToText(t, mainSource, batch.Changes[protocol.DocumentURI(mainURI)])

	wantWidget := strings.ReplaceAll(widgetSource, "Lcom/app/Widget;", "Lcom/app/Gadget;")
	wantMain := strings.ReplaceAll(mainSource, "Lcom/app/Widget;", "Lcom/app/Gadget;")
	wantMain = strings.ReplaceAll(wantMain, `"Lcom/app/Widget"`, `"Lcom/app/Gadget"`)
	assert.Equal(t, wantWidget, gotWidget)
	assert.Equal(t, wantMain, gotMain)

	require.Len(t, batch.Renames, 1)
	assert.Equal(t, protocol.DocumentURI(widgetURI), batch.Renames[0].OldURI)
	assert.Equal(t, protocol.DocumentURI(uri.File("/ws/com/app/Gadget.smali")), batch.Renames[0].NewURI)
}

func TestApplyTypeRenameRoundTrip(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(widgetURI, widgetSource, pos(0, 14))
	require.NotNil(t, target)
	batch, err := engine.Apply(context.Background(), target, "Lcom/app/Gadget;")
	require.NoError(t, err)

	renamedWidget := applyEditsToText(t, widgetSource, batch.Changes[protocol.DocumentURI(widgetURI)])
	renamedMain := applyEditsToText(t, mainSource, batch.Changes[protocol.DocumentURI(mainURI)])
	gadgetURI := uri.File("/ws/com/app/Gadget.smali")

	// Index the renamed workspace and rename back.
	idx := index.NewDocumentIndex()
	_, err = idx.Open(gadgetURI, renamedWidget)
	require.NoError(t, err)
	_, err = idx.Open(mainURI, renamedMain)
	require.NoError(t, err)
	idx.MarkReady()
	back := NewEngine(idx)

	target = back.Classify(gadgetURI, renamedWidget, pos(0, 14))
	require.NotNil(t, target)
	batch, err = back.Apply(context.Background(), target, "Lcom/app/Widget;")
	require.NoError(t, err)

	assert.Equal(t, widgetSource, applyEditsToText(t, renamedWidget, batch.Changes[protocol.DocumentURI(gadgetURI)]))
	assert.Equal(t, mainSource, applyEditsToText(t, renamedMain, batch.Changes[protocol.DocumentURI(mainURI)]))

	require.Len(t, batch.Renames, 1)
	assert.Equal(t, protocol.DocumentURI(uri.File("/ws/com/app/Widget.smali")), batch.Renames[0].NewURI)
}

func TestApplyTypeRenameRejectsInvalidDescriptor(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(widgetURI, widgetSource, pos(0, 14))
	require.NotNil(t, target)

	_, err := engine.Apply(context.Background(), target, "Gadget")
	assert.Error(t, err)
}

func TestApplyFieldDeclRename(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(widgetURI, widgetSource, pos(3, 16))
	require.NotNil(t, target)

	batch, err := engine.Apply(context.Background(), target, "total")
	require.NoError(t, err)

	// Declaration plus the two qualified references, all in Widget.
	require.Len(t, batch.Changes, 1)
	edits := batch.Changes[protocol.DocumentURI(widgetURI)]
	require.Len(t, edits, 3)

	got := applyEditsToText(t, widgetSource, edits)
	assert.Contains(t, got, ".field private total:I")
	assert.Contains(t, got, "Lcom/app/Widget;->total:I")
	assert.NotContains(t, got, "count")
	assert.Empty(t, batch.Renames)
}

func TestApplyMethodDeclRenameKeepsOverloads(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(widgetURI, widgetSource, pos(13, 17))
	require.NotNil(t, target)
	require.Equal(t, KindMethodDecl, target.Kind)

	batch, err := engine.Apply(context.Background(), target, "fetchCount")
	require.NoError(t, err)

	gotWidget := applyEditsToText(t, widgetSource, batch.Changes[protocol.DocumentURI(widgetURI)])
	gotMain := applyEditsToText(t, mainSource, batch.Changes[protocol.DocumentURI(mainURI)])

	assert.Contains(t, gotWidget, ".method public fetchCount()I")
	assert.Contains(t, gotWidget, ".method public getCount(I)I", "overload with a different signature stays")
	assert.Contains(t, gotMain, "Lcom/app/Widget;->fetchCount()I")
	assert.NotContains(t, gotMain, "getCount")
}

func TestApplyMethodRefRename(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(mainURI, mainSource, pos(14, 45))
	require.NotNil(t, target)
	require.Equal(t, KindMethodRef, target.Kind)

	batch, err := engine.Apply(context.Background(), target, "fetchCount")
	require.NoError(t, err)

	// The declaration in the owner class is edited even though the cursor
	// was on a reference in another file.
	require.Len(t, batch.Changes[protocol.DocumentURI(widgetURI)], 1)
	require.Len(t, batch.Changes[protocol.DocumentURI(mainURI)], 1)

	gotWidget := applyEditsToText(t, widgetSource, batch.Changes[protocol.DocumentURI(widgetURI)])
	assert.Contains(t, gotWidget, ".method public fetchCount()I")
	assert.Contains(t, gotWidget, ".method public getCount(I)I")
}

func TestApplyFieldRefUnindexedOwner(t *testing.T) {
	engine, idx := testEngine(t)

	source := classWithRef()
	orphanURI := uri.File("/ws/com/app/Orphan.smali")
	_, err := idx.Open(orphanURI, source)
	require.NoError(t, err)

	// Cursor on "x" in "Lvendor/Gone;->x:I".
	line, col := refPosition(t, source, "Lvendor/Gone;->x:I")
	target := engine.Classify(orphanURI, source, pos(line, uint32(col+len("Lvendor/Gone;->"))))
	require.NotNil(t, target)
	require.Equal(t, KindFieldRef, target.Kind)
	assert.Equal(t, "Lvendor/Gone;", target.Owner)

	batch, err := engine.Apply(context.Background(), target, "y")
	require.NoError(t, err, "unindexed owner must not fail the rename")

	// Only the qualified references are rewritten.
	require.Len(t, batch.Changes, 1)
	got := applyEditsToText(t, source, batch.Changes[protocol.DocumentURI(orphanURI)])
	assert.Contains(t, got, "Lvendor/Gone;->y:I")
	assert.NotContains(t, got, "->x:I")
}

func TestApplyRejectsInvalidMemberName(t *testing.T) {
	engine, _ := testEngine(t)

	target := engine.Classify(widgetURI, widgetSource, pos(3, 16))
	require.NotNil(t, target)

	_, err := engine.Apply(context.Background(), target, "bad name")
	assert.Error(t, err)
}

func TestDeriveRenamedPath(t *testing.T) {
	tests := []struct {
		name    string
		oldPath string
		oldID   string
		newID   string
		want    string
	}{
		{
			"identifier-derived location",
			"/ws/smali/com/app/Widget.smali", "Lcom/app/Widget;", "Lcom/app/Gadget;",
			"/ws/smali/com/app/Gadget.smali",
		},
		{
			"package move keeps the root",
			"/ws/smali/com/app/Widget.smali", "Lcom/app/Widget;", "Lorg/other/Gadget;",
			"/ws/smali/org/other/Gadget.smali",
		},
		{
			"off-convention location renames the leaf only",
			"/ws/extracted/Widget.smali", "Lcom/app/Widget;", "Lcom/app/Gadget;",
			"/ws/extracted/Gadget.smali",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveRenamedPath(tt.oldPath, tt.oldID, tt.newID))
		})
	}
}

func classWithRef() string {
	return `.class public Lcom/app/Orphan;
.super Ljava/lang/Object;

.method public poke()I
    .locals 1
    sget v0, Lvendor/Gone;->x:I
    sput v0, Lvendor/Gone;->x:I
    return v0
.end method
`
}

// refPosition returns the 0-based line and column of the first occurrence
// of needle in text.
func refPosition(t *testing.T, text, needle string) (uint32, int) {
	t.Helper()
	offset := strings.Index(text, needle)
	require.GreaterOrEqual(t, offset, 0)
	prefix := text[:offset]
	line := strings.Count(prefix, "\n")
	col := offset - (strings.LastIndex(prefix, "\n") + 1)
	return uint32(line), col
}
