package fabric

// Packet names, the full set from spec.md §6. The payload types follow
// the constants below.
const (
	PacketStorDiscover         = "stor_discover"
	PacketStorItemList         = "stor_item_list"
	PacketStorItemDiff         = "stor_item_diff"
	PacketStorInsert           = "stor_insert"
	PacketStorExtract          = "stor_extract"
	PacketStorRecipeReserve    = "stor_recipe_reserve"
	PacketStorRecipeStart      = "stor_recipe_start"
	PacketStorRecipeCancel     = "stor_recipe_cancel"
	PacketStorGetDroneItemList = "stor_get_drone_item_list"
	PacketStorDroneItemList    = "stor_drone_item_list"
	PacketStorDroneInsert      = "stor_drone_insert"
	PacketStorDroneExtract     = "stor_drone_extract"
	PacketStorDroneItemDiff    = "stor_drone_item_diff"
	PacketStorStarted          = "stor_started"

	PacketCraftDiscover     = "craft_discover"
	PacketCraftRecipeList   = "craft_recipe_list"
	PacketCraftCheckRecipe  = "craft_check_recipe"
	PacketCraftRecipeConfirm = "craft_recipe_confirm"
	PacketCraftRecipeError  = "craft_recipe_error"
	PacketCraftRecipeStart  = "craft_recipe_start"
	PacketCraftRecipeCancel = "craft_recipe_cancel"
	PacketCraftStarted      = "craft_started"

	PacketRobotPrepareCraft = "robot_prepare_craft"
	PacketRobotStartCraft   = "robot_start_craft"
	PacketRobotFinished     = "robot_finished_craft"
	PacketRobotError        = "robot_error"
	PacketRobotHalt         = "robot_halt"
	PacketRobotUpload       = "robot_upload"
)

// ItemListEntry is one row of a stor_item_list / stor_item_diff payload.
type ItemListEntry struct {
	Kind      Kind
	MaxStack  int
	Label     string
	Available int // 0 in a diff means "removed"
}

// ExtractRequest is the stor_extract / one entry of stor_drone_extract's
// extract-list payload.
type ExtractRequest struct {
	Kind   Kind
	HasKind bool
	Amount int
}

// RecipeReserveRequest is the stor_recipe_reserve payload.
type RecipeReserveRequest struct {
	Ticket        string
	RequiredItems map[Kind]int
}

// DroneExtractRequest is the stor_drone_extract payload: a staging
// inventory index, the owning ticket, a list of (kind, amount) requests,
// and the dirty bits for the ticket's known supply inventories.
type DroneExtractRequest struct {
	DroneIndex    int
	Ticket        string
	Items         []ExtractRequest
	SupplyIndices map[int]bool
}

// DroneOpResult is the storage response to stor_drone_insert/stor_drone_extract.
type DroneOpResult string

const (
	DroneOpOK      DroneOpResult = "ok"
	DroneOpFull    DroneOpResult = "full"
	DroneOpMissing DroneOpResult = "missing"
)

// DroneItemDiff is the stor_drone_item_diff payload.
type DroneItemDiff struct {
	DroneIndex int
	Op         string // "insert" or "extract"
	Result     DroneOpResult
	Diff       map[SlotRef]Stack
}

// RecipeConfirm is the craft_recipe_confirm payload.
type RecipeConfirm struct {
	Ticket   string // empty means "missing"
	Status   SolveStatus
	Progress map[Kind]ProgressEntry
}

// ProgressEntry reports input/output/have counts for one kind in a plan
// preview.
type ProgressEntry struct {
	Input  int
	Output int
	Have   int
}

// RecipeError is the craft_recipe_error payload.
type RecipeError struct {
	Stage   string
	Message string
}

// WorkerTaskRecord is the robot_prepare_craft payload handed to a worker.
type WorkerTaskRecord struct {
	TaskID      string
	StagingIdx  int
	Side        int
	Batches     int
	RecipeID    string
}

// RobotError is the robot_error payload.
type RobotError struct {
	Kind    string // e.g. "crafting_failed"
	Ticket  string
	Message string
}
